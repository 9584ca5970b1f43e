package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GateKind selects how a quality gate is executed.
type GateKind string

const (
	// GateKindCommand runs an external scanner process against the workspace.
	GateKindCommand GateKind = "command"
	// GateKindScore submits an analysis and waits for the
	// computed quality gate status, bounded by a deadline.
	GateKindScore GateKind = "score"
)

type Component struct {
	Name            string `yaml:"name"`
	SourcePath      string `yaml:"source_path"`
	ImageRepository string `yaml:"image_repository"`
}

type Gate struct {
	Name string   `yaml:"name"`
	Kind GateKind `yaml:"kind"`

	// Hard decides whether a failing result aborts the run.
	// This is deliberately explicit configuration, never inferred
	// from the gate's identity.
	Hard bool `yaml:"hard"`

	Command    []string      `yaml:"command,omitempty"`
	Severities []string      `yaml:"severities,omitempty"`
	TaskURL    string        `yaml:"task_url,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

type Source struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`

	// Exclusions are path prefixes that never warrant a run on their own,
	// e.g. the deployment manifest directory the pipeline itself commits to.
	Exclusions []string `yaml:"exclusions"`
}

type Build struct {
	// Command produces an OCI image layout for one component.
	// It receives FREIGHTER_SOURCE, FREIGHTER_IMAGE and FREIGHTER_LAYOUT
	// in its environment.
	Command []string `yaml:"command"`
}

type Registry struct {
	Host        string `yaml:"host"`
	UsernameEnv string `yaml:"username_env"`
	TokenEnv    string `yaml:"token_env"`
	PlainHTTP   bool   `yaml:"plain_http,omitempty"`
}

type GitOps struct {
	URL         string `yaml:"url"`
	Branch      string `yaml:"branch"`
	ManifestDir string `yaml:"manifest_dir"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	UsernameEnv string `yaml:"username_env"`
	TokenEnv    string `yaml:"token_env"`
}

type Notification struct {
	URL       string `yaml:"url"`
	Recipient string `yaml:"recipient"`
	Template  string `yaml:"template,omitempty"`
}

// Pipeline is the immutable definition of one delivery pipeline.
// It is loaded once per process and passed explicitly to every component.
type Pipeline struct {
	JobName      string       `yaml:"job_name"`
	Source       Source       `yaml:"source"`
	Components   []Component  `yaml:"components"`
	Gates        []Gate       `yaml:"gates"`
	Build        Build        `yaml:"build"`
	Registry     Registry     `yaml:"registry"`
	GitOps       GitOps       `yaml:"gitops"`
	Notification Notification `yaml:"notification"`
}

const DefaultScoreGateTimeout = 2 * time.Minute

func LoadPipeline(path string) (*Pipeline, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "While reading pipeline definition %q", path)
	}

	pipeline := Pipeline{}
	if err := yaml.Unmarshal(content, &pipeline); err != nil {
		return nil, errors.WithMessagef(err, "While parsing pipeline definition %q", path)
	}

	if err := pipeline.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "Invalid pipeline definition %q", path)
	}

	return &pipeline, nil
}

func (self *Pipeline) Validate() error {
	if self.JobName == "" {
		return errors.New("job_name must be set")
	}
	if self.Source.URL == "" {
		return errors.New("source.url must be set")
	}
	if len(self.Components) == 0 {
		return errors.New("at least one component must be defined")
	}
	for i, component := range self.Components {
		if component.Name == "" {
			return errors.Errorf("components[%d].name must be set", i)
		}
		if component.ImageRepository == "" {
			return errors.Errorf("component %q needs an image_repository", component.Name)
		}
	}
	for i := range self.Gates {
		gate := &self.Gates[i]
		switch gate.Kind {
		case GateKindCommand:
			if len(gate.Command) == 0 {
				return errors.Errorf("gate %q needs a command", gate.Name)
			}
		case GateKindScore:
			if gate.Timeout == 0 {
				gate.Timeout = DefaultScoreGateTimeout
			}
		default:
			return errors.Errorf("gate %q has unknown kind %q", gate.Name, gate.Kind)
		}
	}
	if len(self.Build.Command) == 0 {
		return errors.New("build.command must be set")
	}
	if self.GitOps.URL == "" {
		return errors.New("gitops.url must be set")
	}
	if self.GitOps.ManifestDir == "" {
		return errors.New("gitops.manifest_dir must be set")
	}
	return nil
}

// Credentials are resolved from the environment at the start of a run
// and are never written to disk.
type Credentials struct {
	Username string
	Token    string
}

func (self Registry) Credentials() Credentials {
	return Credentials{
		Username: GetenvStr(self.UsernameEnv),
		Token:    GetenvStr(self.TokenEnv),
	}
}

func (self GitOps) Credentials() Credentials {
	return Credentials{
		Username: GetenvStr(self.UsernameEnv),
		Token:    GetenvStr(self.TokenEnv),
	}
}
