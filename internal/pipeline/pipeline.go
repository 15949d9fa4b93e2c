// Package pipeline loads task definitions from a YAML file and registers
// them with a task registry.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	taskerrors "github.com/maxkimambo/qtask/internal/errors"
	"github.com/maxkimambo/qtask/internal/fetch"
	"github.com/maxkimambo/qtask/internal/gcp"
	"gopkg.in/yaml.v3"
)

// Step kinds.
const (
	KindSleep    = "sleep"
	KindFail     = "fail"
	KindHTTP     = "http"
	KindGCEStart = "gce_start"
	KindGCEStop  = "gce_stop"
	KindGCEWait  = "gce_wait"
)

const defaultFailMessage = "step failed"

// Pipeline is the parsed content of a pipeline file.
type Pipeline struct {
	Path  string     `yaml:"-"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec defines one named task.
type TaskSpec struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Steps       []StepSpec    `yaml:"steps"`
}

// StepSpec defines one step. Which fields apply depends on Kind.
type StepSpec struct {
	Kind string `yaml:"kind"`

	// sleep
	Duration time.Duration `yaml:"duration,omitempty"`

	// fail
	Message string `yaml:"message,omitempty"`

	// http
	URL            string            `yaml:"url,omitempty"`
	Method         string            `yaml:"method,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Body           string            `yaml:"body,omitempty"`
	ContentType    string            `yaml:"content_type,omitempty"`
	ResponseType   string            `yaml:"response_type,omitempty"`
	Retries        int               `yaml:"retries,omitempty"`
	RetryDelay     time.Duration     `yaml:"retry_delay,omitempty"`
	RequestTimeout time.Duration     `yaml:"request_timeout,omitempty"`
	ExpectStatus   int               `yaml:"expect_status,omitempty"`

	// gce_start, gce_stop, gce_wait
	Project      string        `yaml:"project,omitempty"`
	Zone         string        `yaml:"zone,omitempty"`
	Instance     string        `yaml:"instance,omitempty"`
	Status       string        `yaml:"status,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// Load reads, parses and validates the pipeline file at path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, taskerrors.NewPipelineReadError(path, err)
	}
	p, err := parse(data)
	if err != nil {
		return nil, taskerrors.NewPipelineParseError(path, err)
	}
	p.Path = path
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse parses and validates pipeline YAML.
func Parse(data []byte) (*Pipeline, error) {
	p, err := parse(data)
	if err != nil {
		return nil, taskerrors.NewPipelineParseError("<inline>", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parse(data []byte) (*Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("pipeline is empty")
		}
		return nil, err
	}
	return &p, nil
}

// Validate checks every task and step definition.
func (p *Pipeline) Validate() error {
	if len(p.Tasks) == 0 {
		return taskerrors.NewInvalidTaskError("", "pipeline defines no tasks")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return taskerrors.NewInvalidTaskError(t.Name, "name is required")
		}
		if seen[t.Name] {
			return taskerrors.NewInvalidTaskError(t.Name, "duplicate task name")
		}
		seen[t.Name] = true

		if t.Timeout < 0 {
			return taskerrors.NewInvalidTaskError(t.Name, "timeout must not be negative")
		}
		if len(t.Steps) == 0 {
			return taskerrors.NewInvalidTaskError(t.Name, "no steps defined")
		}
		for i, s := range t.Steps {
			if reason := s.validate(); reason != "" {
				return taskerrors.NewInvalidStepError(t.Name, i, s.Kind, reason)
			}
		}
	}
	return nil
}

func (s StepSpec) validate() string {
	switch s.Kind {
	case KindSleep:
		if s.Duration <= 0 {
			return "duration must be positive"
		}
	case KindFail:
	case KindHTTP:
		if s.URL == "" {
			return "url is required"
		}
		if s.Method != "" && !validMethod(s.Method) {
			return fmt.Sprintf("unsupported method %q", s.Method)
		}
		switch fetch.ResponseType(s.ResponseType) {
		case "", fetch.ResponseJSON, fetch.ResponseText, fetch.ResponseBytes:
		default:
			return fmt.Sprintf("unsupported response_type %q", s.ResponseType)
		}
		if s.RetryDelay < 0 || s.RequestTimeout < 0 {
			return "retry_delay and request_timeout must not be negative"
		}
	case KindGCEStart, KindGCEStop, KindGCEWait:
		if s.Project == "" || s.Zone == "" || s.Instance == "" {
			return "project, zone and instance are required"
		}
		if s.PollInterval < 0 {
			return "poll_interval must not be negative"
		}
	case "":
		return "kind is required"
	default:
		return fmt.Sprintf("unknown kind %q", s.Kind)
	}
	return ""
}

func validMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// Task returns the definition named name.
func (p *Pipeline) Task(name string) (TaskSpec, bool) {
	for _, t := range p.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskSpec{}, false
}

// Names returns task names in file order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		names = append(names, t.Name)
	}
	return names
}

// UsesCompute reports whether any step talks to Compute Engine.
func (p *Pipeline) UsesCompute() bool {
	for _, t := range p.Tasks {
		for _, s := range t.Steps {
			if s.isCompute() {
				return true
			}
		}
	}
	return false
}

func (s StepSpec) isCompute() bool {
	return s.Kind == KindGCEStart || s.Kind == KindGCEStop || s.Kind == KindGCEWait
}

func (s StepSpec) instanceRef() gcp.InstanceRef {
	return gcp.InstanceRef{Project: s.Project, Zone: s.Zone, Name: s.Instance}
}
