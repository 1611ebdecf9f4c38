package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a backend record identifier. The backend has served both string
// and numeric ids, so both decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Project is the backend project record.
type Project struct {
	Name         string                 `json:"name"`
	DisplayName  string                 `json:"display_name"`
	OwnerEmail   string                 `json:"owner_email,omitempty"`
	AllowedUsers []string               `json:"allowed_users,omitempty"`
	Settings     map[string]interface{} `json:"settings,omitempty"`
}

// CreateProjectRequest is the POST /projects payload.
type CreateProjectRequest struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name,omitempty"`
	OwnerEmail   string   `json:"owner_email,omitempty"`
	AllowedUsers []string `json:"allowed_users"`
}

// Classification places a mapping in the organ system / group hierarchy.
type Classification struct {
	Path []string `json:"path"`
}

// SourceRef names the variable of one source system.
type SourceRef struct {
	System   string `json:"system"`
	Variable string `json:"variable"`
}

// Source systems known to the backend.
const (
	SystemEPIC = "EPIC"
	SystemPDMS = "PDMS"
)

// Mapping is one backend mapping record.
type Mapping struct {
	ID             ID             `json:"id,omitempty"`
	Name           string         `json:"name"`
	Unit           string         `json:"unit"`
	Status         string         `json:"status,omitempty"`
	Classification Classification `json:"classification"`
	Source         []SourceRef    `json:"source"`
}

// SourceVariable returns the variable for system (case-insensitive). The
// last matching entry wins.
func (m Mapping) SourceVariable(system string) string {
	var v string
	for _, s := range m.Source {
		if strings.EqualFold(strings.TrimSpace(s.System), system) {
			v = s.Variable
		}
	}
	return v
}

// User is the subset of GET /me used for display.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
