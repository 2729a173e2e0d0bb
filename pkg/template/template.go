// Package template renders message content and webhook payloads against a
// participant's lead and journey position.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/models"
)

// Data is the context exposed to templates as .lead, .participant, .step
// and .journey_id.
func Data(lead *models.Lead, participant *models.Participant, step *models.Step) map[string]any {
	data := map[string]any{
		"lead":        map[string]any{},
		"participant": map[string]any{},
		"step":        map[string]any{},
	}

	if lead != nil {
		leadData := map[string]any{
			"id":           lead.ID,
			"status":       lead.Status,
			"email":        lead.Email,
			"phone_number": lead.PhoneNumber,
			"first_name":   lead.FirstName,
			"last_name":    lead.LastName,
			"fields":       lead.Fields,
			"custom":       lead.Custom,
		}

		for name, relation := range lead.Related {
			leadData[name] = relation
		}

		data["lead"] = leadData
	}

	if participant != nil {
		data["participant"] = map[string]any{
			"id":         participant.ID,
			"status":     participant.Status,
			"entered_at": participant.EnteredAt.Format(time.RFC3339),
		}
		data["journey_id"] = participant.JourneyID
	}

	if step != nil {
		data["step"] = map[string]any{
			"id":   step.ID,
			"name": step.Name,
			"type": step.Type,
		}
	}

	return data
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString executes the template and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.
		New("content").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes the template and decodes the output as JSON, a number or a
// boolean when it looks like one.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
