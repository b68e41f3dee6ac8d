// Package discovery scans the Runtime's on-disk project/session tree to
// answer "what sessions exist" without going through the Session Backend,
// mirroring the filesystem scan a standalone session browser performs.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Session is one discovered session.
type Session struct {
	SessionID   string
	Project     string // short label, e.g. "my-project"
	ProjectPath string // full reconstructed path
	ModTime     time.Time
	Name        string // from metadata.json
	Description string // from metadata.json
}

// Project aggregates the sessions found under one project directory.
type Project struct {
	ProjectID    string // the encoded directory name
	ProjectName  string // short label
	ProjectPath  string // reconstructed full path
	SessionCount int
	LastActive   time.Time
}

type sessionMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Scanner scans <runtimeHome>/projects/<encoded-path>/sessions/<id> for
// discoverable sessions. An id containing '_' is a sub-session and is
// skipped; a session directory without transcript.jsonl is ignored.
type Scanner struct {
	runtimeHome string
}

// NewScanner constructs a Scanner rooted at runtimeHome.
func NewScanner(runtimeHome string) *Scanner {
	return &Scanner{runtimeHome: runtimeHome}
}

func (s *Scanner) projectsDir() string {
	return filepath.Join(s.runtimeHome, "projects")
}

// ListSessions returns up to limit sessions across all projects, most
// recently modified first. projectFilter, if non-empty, restricts results
// to sessions whose project short name matches exactly.
func (s *Scanner) ListSessions(limit int, projectFilter string) ([]Session, error) {
	projectDirs, err := os.ReadDir(s.projectsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sessions []Session
	for _, pd := range projectDirs {
		if !pd.IsDir() {
			continue
		}
		projectPath := DecodeProjectID(pd.Name())
		projectName := extractProjectName(projectPath)
		if projectFilter != "" && projectName != projectFilter {
			continue
		}

		for _, sd := range s.sessionDirsUnder(pd.Name()) {
			sess, ok := s.readSession(sd, projectName, projectPath)
			if !ok {
				continue
			}
			sessions = append(sessions, sess)
		}
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ModTime.After(sessions[j].ModTime) })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// GetSession finds one session by id across every project.
func (s *Scanner) GetSession(sessionID string) (Session, bool, error) {
	projectDirs, err := os.ReadDir(s.projectsDir())
	if os.IsNotExist(err) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}

	for _, pd := range projectDirs {
		if !pd.IsDir() {
			continue
		}
		projectPath := DecodeProjectID(pd.Name())
		projectName := extractProjectName(projectPath)

		for _, base := range s.sessionsDirCandidates(pd.Name()) {
			dir := filepath.Join(base, sessionID)
			if _, err := os.Stat(filepath.Join(dir, "transcript.jsonl")); err == nil {
				if sess, ok := s.readSession(dir, projectName, projectPath); ok {
					return sess, true, nil
				}
			}
		}
	}
	return Session{}, false, nil
}

// ListProjects aggregates session counts and last-active time per
// project, sorted by project name.
func (s *Scanner) ListProjects() ([]Project, error) {
	projectDirs, err := os.ReadDir(s.projectsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var projects []Project
	for _, pd := range projectDirs {
		if !pd.IsDir() {
			continue
		}
		projectPath := DecodeProjectID(pd.Name())
		projectName := extractProjectName(projectPath)

		count := 0
		var latest time.Time
		for _, sd := range s.sessionDirsUnder(pd.Name()) {
			transcript := filepath.Join(sd, "transcript.jsonl")
			info, err := os.Stat(transcript)
			if err != nil {
				continue
			}
			count++
			if info.ModTime().After(latest) {
				latest = info.ModTime()
			}
		}
		if count > 0 {
			projects = append(projects, Project{
				ProjectID:    pd.Name(),
				ProjectName:  projectName,
				ProjectPath:  projectPath,
				SessionCount: count,
				LastActive:   latest,
			})
		}
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].ProjectName < projects[j].ProjectName })
	return projects, nil
}

// sessionsDirCandidates returns, in preference order, the directories a
// project's sessions may live directly under: a "sessions" subdirectory,
// falling back to the project directory itself for projects that store
// sessions flat.
func (s *Scanner) sessionsDirCandidates(projectDirName string) []string {
	projectDir := filepath.Join(s.projectsDir(), projectDirName)
	sessionsDir := filepath.Join(projectDir, "sessions")
	if info, err := os.Stat(sessionsDir); err == nil && info.IsDir() {
		return []string{sessionsDir, projectDir}
	}
	return []string{projectDir}
}

func (s *Scanner) sessionDirsUnder(projectDirName string) []string {
	base := s.sessionsDirCandidates(projectDirName)[0]
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), "_") {
			continue
		}
		dirs = append(dirs, filepath.Join(base, e.Name()))
	}
	return dirs
}

func (s *Scanner) readSession(dir, projectName, projectPath string) (Session, bool) {
	transcript := filepath.Join(dir, "transcript.jsonl")
	info, err := os.Stat(transcript)
	if err != nil {
		return Session{}, false
	}

	var meta sessionMetadata
	if data, err := os.ReadFile(filepath.Join(dir, "metadata.json")); err == nil {
		_ = json.Unmarshal(data, &meta)
	}

	return Session{
		SessionID:   filepath.Base(dir),
		Project:     projectName,
		ProjectPath: projectPath,
		ModTime:     info.ModTime(),
		Name:        meta.Name,
		Description: meta.Description,
	}, true
}

// DecodeProjectID reverses the working-directory encoding: a leading '-'
// marks an encoded absolute path, every '-' in which maps back to '/'.
// Directory names without the leading dash are returned unchanged.
func DecodeProjectID(dirName string) string {
	if strings.HasPrefix(dirName, "-") {
		return strings.ReplaceAll(dirName, "-", "/")
	}
	return dirName
}

func extractProjectName(projectPath string) string {
	trimmed := strings.TrimRight(projectPath, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return projectPath
	}
	return parts[len(parts)-1]
}
