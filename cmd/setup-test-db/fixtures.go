package main

import (
	"context"
	"fmt"
	"os"

	"triageapp/internal/models"
	"triageapp/internal/serviceinterfaces"

	"gopkg.in/yaml.v3"
)

// Fixtures is the seed data file layout
type Fixtures struct {
	Users   []FixtureUser   `yaml:"users"`
	Reports []FixtureReport `yaml:"reports"`
}

// FixtureUser is one account plus the keys to issue for it
type FixtureUser struct {
	Username    string          `yaml:"username"`
	Email       string          `yaml:"email"`
	DisplayName string          `yaml:"display_name"`
	Admin       bool            `yaml:"admin"`
	APIKeys     []FixtureAPIKey `yaml:"api_keys"`
}

// FixtureAPIKey describes a key to issue
type FixtureAPIKey struct {
	Name       string `yaml:"name"`
	Permission string `yaml:"permission"`
}

// FixtureReport is a report with its follow-up activity
type FixtureReport struct {
	Username     string               `yaml:"username"`
	Type         models.ReportType    `yaml:"type"`
	Title        string               `yaml:"title"`
	Description  string               `yaml:"description"`
	Severity     models.Severity      `yaml:"severity"`
	Category     models.Category      `yaml:"category"`
	PageURL      string               `yaml:"page_url"`
	Messages     []FixtureMessage     `yaml:"messages"`
	Status       models.ReportStatus  `yaml:"status"`
	AssignTo     string               `yaml:"assign_to"`
	Satisfaction *FixtureSatisfaction `yaml:"satisfaction"`
}

// FixtureMessage is a thread entry written by username
type FixtureMessage struct {
	Username string `yaml:"username"`
	Body     string `yaml:"body"`
}

// FixtureSatisfaction is the reporter's rating
type FixtureSatisfaction struct {
	Rating   models.Rating `yaml:"rating"`
	Feedback string        `yaml:"feedback"`
}

// SeedResult is written for E2E tests that need the generated ids and keys
type SeedResult struct {
	Users   map[string]SeededUser `json:"users"`
	Reports []string              `json:"reports"`
}

// SeededUser carries the created id and raw keys by key name
type SeededUser struct {
	ID      int               `json:"id"`
	Admin   bool              `json:"admin"`
	APIKeys map[string]string `json:"api_keys"`
}

// LoadFixtures reads and checks a fixtures file
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixtures) check() error {
	known := make(map[string]bool, len(f.Users))
	for _, u := range f.Users {
		if u.Username == "" {
			return fmt.Errorf("user without username")
		}
		if known[u.Username] {
			return fmt.Errorf("duplicate user %q", u.Username)
		}
		known[u.Username] = true
		for _, k := range u.APIKeys {
			if !models.IsValidPermissionLevel(k.Permission) {
				return fmt.Errorf("user %q: invalid permission %q", u.Username, k.Permission)
			}
		}
	}
	for i, r := range f.Reports {
		if !known[r.Username] {
			return fmt.Errorf("report %d: unknown user %q", i, r.Username)
		}
		if r.AssignTo != "" && !known[r.AssignTo] {
			return fmt.Errorf("report %d: unknown assignee %q", i, r.AssignTo)
		}
		for _, m := range r.Messages {
			if !known[m.Username] {
				return fmt.Errorf("report %d: unknown message author %q", i, m.Username)
			}
		}
		if r.Status != "" && !r.Status.IsValid() {
			return fmt.Errorf("report %d: invalid status %q", i, r.Status)
		}
		if r.Satisfaction != nil {
			if !r.Satisfaction.Rating.IsValid() {
				return fmt.Errorf("report %d: invalid rating %q", i, r.Satisfaction.Rating)
			}
			if !r.Status.AcceptsFeedback() {
				return fmt.Errorf("report %d: ratings need a resolved or closed status", i)
			}
		}
	}
	return nil
}

// Seeder applies fixtures through the regular services, so every invariant they enforce holds for seeded data
type Seeder struct {
	Users        serviceinterfaces.UserServiceInterface
	Keys         serviceinterfaces.AuthAPIKeyServiceInterface
	Reports      serviceinterfaces.ReportServiceInterface
	Satisfaction serviceinterfaces.SatisfactionServiceInterface
}

// Apply creates the fixtures and returns what was created
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) (*SeedResult, error) {
	result := &SeedResult{Users: make(map[string]SeededUser, len(f.Users))}
	actors := make(map[string]models.Actor, len(f.Users))
	var staff *models.Actor

	for _, fu := range f.Users {
		user, err := s.Users.CreateUser(ctx, fu.Username, fu.Email, fu.DisplayName, fu.Admin)
		if err != nil {
			return nil, fmt.Errorf("create user %q: %w", fu.Username, err)
		}
		seeded := SeededUser{ID: user.ID, Admin: user.IsAdmin, APIKeys: map[string]string{}}
		for _, k := range fu.APIKeys {
			_, raw, err := s.Keys.CreateAPIKey(ctx, user.ID, k.Name, k.Permission)
			if err != nil {
				return nil, fmt.Errorf("create key %q for %q: %w", k.Name, fu.Username, err)
			}
			seeded.APIKeys[k.Name] = raw
		}
		result.Users[fu.Username] = seeded
		actor := user.Actor()
		actors[fu.Username] = actor
		if staff == nil && actor.IsAdmin {
			staff = &actor
		}
	}

	for i, fr := range f.Reports {
		reporter := actors[fr.Username]
		report, err := s.Reports.CreateReport(ctx, reporter, serviceinterfaces.CreateReportInput{
			ReportType:  fr.Type,
			Title:       fr.Title,
			Description: fr.Description,
			Severity:    fr.Severity,
			Category:    fr.Category,
			PageURL:     fr.PageURL,
			UserAgent:   "setup-test-db",
		})
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		result.Reports = append(result.Reports, report.ID)

		for _, m := range fr.Messages {
			if _, err := s.Reports.AddMessage(ctx, actors[m.Username], report.ID, m.Body); err != nil {
				return nil, fmt.Errorf("report %d message: %w", i, err)
			}
		}

		if fr.AssignTo != "" || (fr.Status != "" && fr.Status != models.StatusOpen) {
			if staff == nil {
				return nil, fmt.Errorf("report %d: assigning or changing status needs a staff user", i)
			}
		}
		if fr.AssignTo != "" {
			if _, err := s.Reports.AssignReport(ctx, *staff, report.ID, actors[fr.AssignTo].UserID); err != nil {
				return nil, fmt.Errorf("report %d assign: %w", i, err)
			}
		}
		if fr.Status != "" && fr.Status != models.StatusOpen {
			if _, err := s.Reports.UpdateStatus(ctx, *staff, report.ID, fr.Status); err != nil {
				return nil, fmt.Errorf("report %d status: %w", i, err)
			}
		}
		if fr.Satisfaction != nil {
			if _, err := s.Satisfaction.Submit(ctx, reporter, report.ID, fr.Satisfaction.Rating, fr.Satisfaction.Feedback); err != nil {
				return nil, fmt.Errorf("report %d satisfaction: %w", i, err)
			}
		}
	}
	return result, nil
}
