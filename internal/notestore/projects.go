package notestore

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/models"
)

// Projects returns a copy of all projects in insertion order.
func (s *Store) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.projects)
}

// Project returns the project with id.
func (s *Store) Project(id string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.projectIndex(id)
	if i < 0 {
		return models.Project{}, apperr.ErrNotFound
	}
	return s.projects[i], nil
}

// CreateProject adds a project. Names are trimmed and must not be blank.
func (s *Store) CreateProject(name string) (models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Project{}, apperr.ErrInvalidTitle
	}
	p := models.Project{ID: uuid.NewString(), Name: name}

	s.mu.Lock()
	s.projects = append(s.projects, p)
	s.mu.Unlock()

	s.persist()
	return p, nil
}

// RenameProject changes a project's name.
func (s *Store) RenameProject(id, name string) (models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Project{}, apperr.ErrInvalidTitle
	}
	s.mu.Lock()
	i := s.projectIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Project{}, apperr.ErrNotFound
	}
	s.projects[i].Name = name
	p := s.projects[i]
	s.mu.Unlock()

	s.persist()
	return p, nil
}

// DeleteProject removes a project. Notes keep their ProjectID; a dangling
// reference is read as "no project".
func (s *Store) DeleteProject(id string) error {
	s.mu.Lock()
	i := s.projectIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	s.projects = slices.Delete(s.projects, i, i+1)
	s.mu.Unlock()

	s.persist()
	return nil
}

// AssignProject sets or clears (projectID == "") the note's project.
func (s *Store) AssignProject(noteID, projectID string) (models.Note, error) {
	if projectID != "" {
		if _, err := s.Project(projectID); err != nil {
			return models.Note{}, err
		}
	}
	return s.Update(noteID, func(n *models.Note) error {
		n.ProjectID = projectID
		return nil
	})
}

func (s *Store) projectIndex(id string) int {
	return slices.IndexFunc(s.projects, func(p models.Project) bool { return p.ID == id })
}
