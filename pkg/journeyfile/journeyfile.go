// Package journeyfile loads journey definitions from YAML documents.
package journeyfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Definition is the file form of a journey.
type Definition struct {
	ID          int64            `yaml:"id"`
	AccountID   int64            `yaml:"account_id"`
	CampaignID  int64            `yaml:"campaign_id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	IsActive    *bool            `yaml:"is_active"`
	Steps       []fileStep       `yaml:"steps"`
	Connections []fileConnection `yaml:"connections"`
}

type fileStep struct {
	ID           int64          `yaml:"id"`
	Name         string         `yaml:"name"`
	Order        int            `yaml:"order"`
	Type         string         `yaml:"type"`
	TemplateID   *int64         `yaml:"template_id"`
	Config       map[string]any `yaml:"config"`
	IsEntryPoint bool           `yaml:"entry_point"`
	IsActive     *bool          `yaml:"is_active"`
}

type fileConnection struct {
	ID             int64  `yaml:"id"`
	From           int64  `yaml:"from"`
	To             int64  `yaml:"to"`
	Priority       int    `yaml:"priority"`
	IsActive       *bool  `yaml:"is_active"`
	ConditionLabel string `yaml:"label"`

	models.TriggerFields `yaml:",inline"`
}

// Load reads every journey from a YAML file. A file holds either one journey
// or a "journeys" list.
func Load(path string) ([]*models.Journey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journey file: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	journeys, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return journeys, nil
}

// Decode parses a stream of YAML documents.
func Decode(r io.Reader) ([]*models.Journey, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var journeys []*models.Journey

	for {
		var doc struct {
			Journeys   []Definition `yaml:"journeys"`
			Definition `yaml:",inline"`
		}

		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to parse journey document: %w", err)
		}

		definitions := doc.Journeys
		if doc.Name != "" || len(doc.Steps) > 0 {
			definitions = append(definitions, doc.Definition)
		}

		for _, definition := range definitions {
			j, err := definition.journey()
			if err != nil {
				return nil, err
			}

			journeys = append(journeys, j)
		}
	}

	return journeys, nil
}

func (f Definition) journey() (*models.Journey, error) {
	j := &models.Journey{
		ID:          f.ID,
		AccountID:   f.AccountID,
		CampaignID:  f.CampaignID,
		Name:        f.Name,
		Description: f.Description,
		IsActive:    orTrue(f.IsActive),
	}

	for _, s := range f.Steps {
		stepType, err := models.ParseStepType(s.Type)
		if err != nil {
			return nil, fmt.Errorf("journey %q step %d: %w", f.Name, s.ID, err)
		}

		j.Steps = append(j.Steps, &models.Step{
			ID:           s.ID,
			JourneyID:    f.ID,
			Name:         s.Name,
			Order:        s.Order,
			Type:         stepType,
			TemplateID:   s.TemplateID,
			Config:       s.Config,
			IsEntryPoint: s.IsEntryPoint,
			IsActive:     orTrue(s.IsActive),
		})
	}

	for _, c := range f.Connections {
		trigger, err := c.Trigger()
		if err != nil {
			return nil, fmt.Errorf("journey %q connection %d: %w", f.Name, c.ID, err)
		}

		j.Connections = append(j.Connections, &models.Connection{
			ID:             c.ID,
			JourneyID:      f.ID,
			FromStepID:     c.From,
			ToStepID:       c.To,
			Priority:       c.Priority,
			IsActive:       orTrue(c.IsActive),
			ConditionLabel: c.ConditionLabel,
			Trigger:        trigger,
		})
	}

	err := validate.Struct(j)
	if err != nil {
		return nil, fmt.Errorf("journey %q: %w", f.Name, err)
	}

	return j, nil
}

func orTrue(value *bool) bool {
	return value == nil || *value
}
