package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Session document field names. These are part of the on-disk format.
const (
	fieldFolders            = "folders"
	fieldCurrentIndex       = "currentIndex"
	fieldAlwaysOnTop        = "alwaysOnTop"
	fieldTrackedProcessName = "trackedProcessName"
)

// SessionConfig is the persisted session document. It is a value type: Clone
// before handing it to anything that outlives the call.
type SessionConfig struct {
	Folders            []string
	CurrentIndex       int
	AlwaysOnTop        bool
	TrackedProcessName *string

	// extra holds top-level fields this version does not know about so they
	// survive a load/save cycle
	extra map[string]json.RawMessage
}

// Defaults returns the document used when no usable file exists
func Defaults() SessionConfig {
	return SessionConfig{
		Folders:      []string{},
		CurrentIndex: 0,
	}
}

// Tracked returns the tracked process name, or "" when unset
func (c SessionConfig) Tracked() string {
	if c.TrackedProcessName == nil {
		return ""
	}
	return *c.TrackedProcessName
}

// SetTracked sets or clears (empty name) the tracked process name
func (c *SessionConfig) SetTracked(name string) {
	if name == "" {
		c.TrackedProcessName = nil
		return
	}
	c.TrackedProcessName = &name
}

// ExtraFields returns the names of preserved unknown fields, sorted
func (c SessionConfig) ExtraFields() []string {
	names := make([]string, 0, len(c.extra))
	for name := range c.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy that shares no memory with c
func (c SessionConfig) Clone() SessionConfig {
	out := c
	out.Folders = append([]string{}, c.Folders...)
	if c.TrackedProcessName != nil {
		name := *c.TrackedProcessName
		out.TrackedProcessName = &name
	}
	if c.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(c.extra))
		for k, v := range c.extra {
			out.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// MarshalJSON writes the known fields plus any preserved unknown ones
func (c SessionConfig) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 4+len(c.extra))
	for k, v := range c.extra {
		doc[k] = v
	}

	folders := c.Folders
	if folders == nil {
		folders = []string{}
	}
	index := c.CurrentIndex
	if index < 0 {
		index = 0
	}

	doc[fieldFolders] = folders
	doc[fieldCurrentIndex] = index
	doc[fieldAlwaysOnTop] = c.AlwaysOnTop
	doc[fieldTrackedProcessName] = c.TrackedProcessName

	return json.Marshal(doc)
}

// UnmarshalJSON decodes a session document. Missing fields keep their
// defaults; a document that is not a JSON object is rejected.
func (c *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("session document is not an object")
	}

	out := Defaults()

	if v, ok := raw[fieldFolders]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Folders); err != nil {
			return fmt.Errorf("field %s: %w", fieldFolders, err)
		}
		if out.Folders == nil {
			out.Folders = []string{}
		}
	}
	if v, ok := raw[fieldCurrentIndex]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.CurrentIndex); err != nil {
			return fmt.Errorf("field %s: %w", fieldCurrentIndex, err)
		}
		if out.CurrentIndex < 0 {
			out.CurrentIndex = 0
		}
	}
	if v, ok := raw[fieldAlwaysOnTop]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.AlwaysOnTop); err != nil {
			return fmt.Errorf("field %s: %w", fieldAlwaysOnTop, err)
		}
	}
	if v, ok := raw[fieldTrackedProcessName]; ok && !isNull(v) {
		var name string
		if err := json.Unmarshal(v, &name); err != nil {
			return fmt.Errorf("field %s: %w", fieldTrackedProcessName, err)
		}
		out.SetTracked(name)
	}

	for _, known := range []string{fieldFolders, fieldCurrentIndex, fieldAlwaysOnTop, fieldTrackedProcessName} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		out.extra = raw
	}

	*c = out
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
