package similarity

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Settings is the environment-derived client configuration. It is read once, when a
// client is constructed.
type Settings struct {
	BaseURL string        `default:"http://localhost:5000/api" validate:"required,url"`
	Timeout time.Duration `default:"30s" validate:"gte=0"`
	Debug   bool

	// set when Timeout came from the default tag rather than the environment
	defaultTimeout bool
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadSettings reads SIMILARITY_API_URL, SIMILARITY_TIMEOUT and SIMILARITY_DEBUG on top of
// the defaults, so SIMILARITY_TIMEOUT=0 disables the timeout. The given env files are
// loaded first without overriding variables that are already set; with no files, a .env
// in the working directory is used when present.
func LoadSettings(envFiles ...string) (*Settings, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, errors.Wrap(err, "error loading env files")
		}
	} else if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "error loading .env")
	}

	s := &Settings{}
	if err := defaults.Set(s); err != nil {
		return nil, errors.Wrap(err, "error applying settings defaults")
	}
	s.defaultTimeout = true
	if raw := strings.TrimSpace(os.Getenv(EnvBaseURL)); raw != "" {
		s.BaseURL = raw
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTimeout)); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvTimeout)
		}
		s.Timeout = timeout
		s.defaultTimeout = false
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDebug)); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", EnvDebug)
		}
		s.Debug = debug
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return s, nil
}

func (s *Settings) Validate() error {
	if err := structValidator.Struct(s); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	return nil
}
