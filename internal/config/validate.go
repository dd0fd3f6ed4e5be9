package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"cs-go/internal/cs"
)

// Known names for link recipes and mirror types.
var (
	LinkRecipeNames = []any{"html", "url"}
	MirrorTypes     = []any{"", "filesystem", "memory", "s3"}
)

var (
	httpURL = validation.By(func(v any) error {
		s, _ := v.(string)
		if s == "" {
			return nil
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("must be an http(s) URL")
		}
		return nil
	})

	positiveDuration = validation.By(func(v any) error {
		s, _ := v.(string)
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.New("must be a duration such as 60s or 5m")
		}
		if d <= 0 {
			return errors.New("must be positive")
		}
		return nil
	})
)

// Validate checks every key. The first problem, by key name, is returned as
// a *cs.ConfigurationError.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, httpURL),
		validation.Field(&c.AccessToken, validation.Required),
		validation.Field(&c.DBName, validation.Required),
		validation.Field(&c.OutputPath, validation.Required),
		validation.Field(&c.PollInterval, validation.Required, positiveDuration),
		validation.Field(&c.LinkRecipes, validation.Required, validation.Each(validation.In(LinkRecipeNames...).Error("unknown link recipe"))),
		validation.Field(&c.Mirror),
	)
	return configurationError("", err)
}

// Validate checks the fields required by the selected mirror type.
func (m MirrorConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.In(MirrorTypes...).Error("unknown mirror type")),
		validation.Field(&m.FSRoot, validation.When(m.Type == "filesystem", validation.Required)),
		validation.Field(&m.S3Bucket, validation.When(m.Type == "s3", validation.Required)),
		validation.Field(&m.S3Region, validation.When(m.Type == "s3", validation.Required)),
		validation.Field(&m.S3Endpoint, httpURL),
		validation.Field(&m.S3AccessKeyID, validation.When(m.S3SecretAccessKey != "", validation.Required)),
		validation.Field(&m.S3SecretAccessKey, validation.When(m.S3AccessKeyID != "", validation.Required)),
	)
}

// configurationError flattens ozzo's per-field errors into one
// ConfigurationError, picking the lexically first key for stable output.
func configurationError(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &cs.ConfigurationError{Key: prefix, Err: err}
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := keys[0]
	if prefix != "" {
		key = fmt.Sprintf("%s.%s", prefix, key)
	}
	return configurationError(key, errs[keys[0]])
}

func init() {
	validation.ErrorTag = "toml"
}
