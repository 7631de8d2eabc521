// Package algorithm defines the Algorithm entity shared by the control
// plane components: the registry service writes the desired-state fields,
// the provisioner owns status and resource_status.
package algorithm

import (
	"fmt"
	"regexp"
	"time"
)

// Status is the lifecycle state of an algorithm. Only the provisioner may
// set StatusActive, StatusError, StatusScaledDown and StatusDeleted.
type Status string

const (
	StatusRegistered  Status = "REGISTERED"
	StatusActive      Status = "ACTIVE"
	StatusError       Status = "ERROR"
	StatusScalingDown Status = "SCALING_DOWN"
	StatusScaledDown  Status = "SCALED_DOWN"
	StatusDeleting    Status = "DELETING"
	StatusDeleted     Status = "DELETED"
)

// Defaults applied when a spec omits the compute sizing knobs.
const (
	DefaultCPU          = 1024
	DefaultMemory       = 2048
	DefaultDesiredCount = 1
)

// DefaultCommand launches the standard worker entrypoint baked into images.
func DefaultCommand() []string {
	return []string{"/app/worker.sh"}
}

var idPattern = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]{2,63}$`)

// ValidID reports whether id matches the allowed identifier shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ResourceStatus holds the backend identifiers assigned by the provisioner.
// Empty until the first successful provision.
type ResourceStatus struct {
	QueueRef   string `json:"queue_ref,omitempty"`
	QueueID    string `json:"queue_id,omitempty"`
	ServiceRef string `json:"service_ref,omitempty"`
}

// Algorithm is one registered workload: a compute/image spec plus its
// lifecycle status and the backend resources provisioned for it.
type Algorithm struct {
	ID             string            `json:"algorithm_id"`
	ImageRef       string            `json:"image_ref"`
	CPU            int               `json:"cpu"`
	Memory         int               `json:"memory"`
	DesiredCount   int               `json:"desired_count"`
	Command        []string          `json:"command"`
	Env            map[string]string `json:"env"`
	Status         Status            `json:"status"`
	ResourceStatus ResourceStatus    `json:"resource_status"`
	LastError      string            `json:"last_error,omitempty"`

	// Descriptive metadata surfaced by the public projection.
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Spec is the caller-supplied registration request.
type Spec struct {
	ID           string            `json:"algorithm_id"`
	ImageRef     string            `json:"image_ref"`
	CPU          int               `json:"cpu"`
	Memory       int               `json:"memory"`
	DesiredCount int               `json:"desired_count"`
	Command      []string          `json:"command"`
	Env          map[string]string `json:"env"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Category     string            `json:"category"`
	Tags         []string          `json:"tags"`
}

// Validate checks the required fields and identifier shape.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: algorithm_id is required", ErrInvalidSpec)
	}
	if !ValidID(s.ID) {
		return fmt.Errorf("%w: algorithm_id must match [a-z0-9_][a-z0-9_-]{2,63}", ErrInvalidSpec)
	}
	if s.ImageRef == "" {
		return fmt.Errorf("%w: image_ref is required", ErrInvalidSpec)
	}
	if s.CPU < 0 || s.Memory < 0 || s.DesiredCount < 0 {
		return fmt.Errorf("%w: cpu, memory and desired_count must be positive", ErrInvalidSpec)
	}
	return nil
}

// New validates the spec, applies defaults and returns a REGISTERED record.
func New(s Spec, now time.Time) (Algorithm, error) {
	if err := s.Validate(); err != nil {
		return Algorithm{}, err
	}
	a := Algorithm{
		ID:           s.ID,
		ImageRef:     s.ImageRef,
		CPU:          s.CPU,
		Memory:       s.Memory,
		DesiredCount: s.DesiredCount,
		Command:      append([]string(nil), s.Command...),
		Env:          cloneStringMap(s.Env),
		Status:       StatusRegistered,
		Name:         s.Name,
		Description:  s.Description,
		Version:      s.Version,
		Category:     s.Category,
		Tags:         append([]string(nil), s.Tags...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if a.CPU == 0 {
		a.CPU = DefaultCPU
	}
	if a.Memory == 0 {
		a.Memory = DefaultMemory
	}
	if a.DesiredCount == 0 {
		a.DesiredCount = DefaultDesiredCount
	}
	if len(a.Command) == 0 {
		a.Command = DefaultCommand()
	}
	if a.Env == nil {
		a.Env = map[string]string{}
	}
	return a, nil
}

// Update carries the PATCH-able subset of the spec. Nil fields are left
// untouched; anything outside this allow-list cannot be changed after
// registration.
type Update struct {
	ImageRef     *string           `json:"image_ref"`
	CPU          *int              `json:"cpu"`
	Memory       *int              `json:"memory"`
	DesiredCount *int              `json:"desired_count"`
	Command      []string          `json:"command"`
	Env          map[string]string `json:"env"`
}

// IsZero reports whether no allow-listed field is set.
func (u Update) IsZero() bool {
	return u.ImageRef == nil && u.CPU == nil && u.Memory == nil &&
		u.DesiredCount == nil && u.Command == nil && u.Env == nil
}

// Validate rejects out-of-range values on the fields that are set.
func (u Update) Validate() error {
	if u.ImageRef != nil && *u.ImageRef == "" {
		return fmt.Errorf("%w: image_ref must not be empty", ErrInvalidSpec)
	}
	if u.CPU != nil && *u.CPU <= 0 {
		return fmt.Errorf("%w: cpu must be positive", ErrInvalidSpec)
	}
	if u.Memory != nil && *u.Memory <= 0 {
		return fmt.Errorf("%w: memory must be positive", ErrInvalidSpec)
	}
	if u.DesiredCount != nil && *u.DesiredCount < 0 {
		return fmt.Errorf("%w: desired_count must not be negative", ErrInvalidSpec)
	}
	return nil
}

// ApplyTo overwrites the record's allow-listed fields with the set values.
func (u Update) ApplyTo(a *Algorithm) {
	if u.ImageRef != nil {
		a.ImageRef = *u.ImageRef
	}
	if u.CPU != nil {
		a.CPU = *u.CPU
	}
	if u.Memory != nil {
		a.Memory = *u.Memory
	}
	if u.DesiredCount != nil {
		a.DesiredCount = *u.DesiredCount
	}
	if u.Command != nil {
		a.Command = append([]string(nil), u.Command...)
	}
	if u.Env != nil {
		a.Env = cloneStringMap(u.Env)
	}
}

// Clone returns a deep copy so store reads never alias internal state.
func (a Algorithm) Clone() Algorithm {
	cp := a
	cp.Command = append([]string(nil), a.Command...)
	cp.Env = cloneStringMap(a.Env)
	cp.Tags = append([]string(nil), a.Tags...)
	return cp
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
