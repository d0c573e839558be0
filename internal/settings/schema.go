package settings

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

// FieldRule describes validation for one settings key. Tag carries a
// validator/v10 rule applied to the submitted string; the remaining flags
// cover the checks validator tags cannot express on bare strings.
type FieldRule struct {
	Tag      string
	Bool     bool
	Int      bool
	Min      int
	Max      int
	Enum     []string
	Language bool
}

// Schema bundles the rules for one settings group. Keys absent from Fields
// are tolerated and stored as-is (forward compatibility with newer pages).
type Schema struct {
	Group  string
	Fields map[string]FieldRule
}

var validate = validator.New()

// BoolFields returns the keys declared as boolean toggles. The HTTP handler
// expands these to an explicit "0" when a form post omits them, matching the
// checkbox semantics of the originating settings pages.
func (s Schema) BoolFields() []string {
	var keys []string
	for key, rule := range s.Fields {
		if rule.Bool {
			keys = append(keys, key)
		}
	}
	return keys
}

// Validate checks the submitted field set and returns per-field messages.
// An empty map means the set is valid. Submitted values for boolean fields
// are normalised in place to "1"/"0".
func (s Schema) Validate(fields map[string]string) map[string]string {
	errs := make(map[string]string)
	for key, value := range fields {
		rule, ok := s.Fields[key]
		if !ok {
			continue
		}
		if msg := rule.check(value); msg != "" {
			errs[key] = msg
			continue
		}
		if rule.Bool {
			fields[key] = normaliseBool(value)
		}
	}
	return errs
}

func (r FieldRule) check(value string) string {
	if r.Tag != "" {
		if err := validate.Var(value, r.Tag); err != nil {
			return fmt.Sprintf("must satisfy %q", r.Tag)
		}
	}
	if r.Bool && normaliseBool(value) == "" {
		return "must be a boolean toggle"
	}
	if r.Int {
		n, err := strconv.Atoi(value)
		if err != nil {
			return "must be an integer"
		}
		if n < r.Min || n > r.Max {
			return fmt.Sprintf("must be between %d and %d", r.Min, r.Max)
		}
	}
	if len(r.Enum) > 0 {
		found := false
		for _, option := range r.Enum {
			if value == option {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("must be one of %v", r.Enum)
		}
	}
	if r.Language {
		if _, err := language.Parse(value); err != nil {
			return "must be a valid language tag"
		}
	}
	return ""
}

// normaliseBool maps the accepted toggle spellings to "1"/"0". The legacy
// settings pages post "1"/"0", while checkboxes may post "on".
func normaliseBool(value string) string {
	switch value {
	case "1", "on", "true", "yes":
		return "1"
	case "0", "", "off", "false", "no":
		return "0"
	default:
		return ""
	}
}

// DefaultSchemas returns the schema registry for the known groups.
func DefaultSchemas() map[string]Schema {
	return map[string]Schema{
		GroupWebsiteMode: {
			Group: GroupWebsiteMode,
			Fields: map[string]FieldRule{
				"maintenance_mode":     {Bool: true},
				"registration_enabled": {Bool: true},
				"account_validation":   {Bool: true},
				"default_privacy":      {Enum: []string{"everyone", "followers", "nobody"}},
			},
		},
		GroupGeneral: {
			Group: GroupGeneral,
			Fields: map[string]FieldRule{
				"site_name":        {Tag: "min=1,max=100"},
				"site_title":       {Tag: "max=150"},
				"site_email":       {Tag: "omitempty,email"},
				"default_language": {Language: true},
			},
		},
		GroupFileUpload: {
			Group: GroupFileUpload,
			Fields: map[string]FieldRule{
				"file_upload":        {Bool: true},
				"max_file_size":      {Int: true, Min: 1, Max: 100},
				"allowed_extensions": {Tag: "max=500"},
				"image_compression":  {Bool: true},
			},
		},
		GroupPosts: {
			Group: GroupPosts,
			Fields: map[string]FieldRule{
				"post_approval":    {Bool: true},
				"comments_enabled": {Bool: true},
				"max_post_length":  {Int: true, Min: 1, Max: 50000},
			},
		},
		GroupEmail: {
			Group: GroupEmail,
			Fields: map[string]FieldRule{
				"smtp_host":       {Tag: "max=255"},
				"smtp_port":       {Int: true, Min: 1, Max: 65535},
				"smtp_username":   {Tag: "max=255"},
				"smtp_password":   {Tag: "max=255"},
				"smtp_encryption": {Enum: []string{"tls", "ssl", "none"}},
				"email_from":      {Tag: "omitempty,email"},
			},
		},
		GroupNodeJS: {
			Group: GroupNodeJS,
			Fields: map[string]FieldRule{
				"nodejs_host": {Tag: "max=255"},
				"nodejs_port": {Int: true, Min: 1, Max: 65535},
				"nodejs_ssl":  {Bool: true},
			},
		},
		GroupSocialLogin: {
			Group: GroupSocialLogin,
			Fields: map[string]FieldRule{
				"facebook_enabled":     {Bool: true},
				"facebook_app_id":      {Tag: "max=255"},
				"facebook_app_secret":  {Tag: "max=255"},
				"google_enabled":       {Bool: true},
				"google_client_id":     {Tag: "max=255"},
				"google_client_secret": {Tag: "max=255"},
			},
		},
		GroupChatVideoAudio: {
			Group: GroupChatVideoAudio,
			Fields: map[string]FieldRule{
				"chat_enabled": {Bool: true},
				"video_chat":   {Bool: true},
				"audio_chat":   {Bool: true},
				"agora_app_id": {Tag: "max=255"},
			},
		},
	}
}
