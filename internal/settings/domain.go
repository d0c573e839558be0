package settings

import "context"

// Known settings groups. Each corresponds to one settings page in the back
// office. Unregistered groups are accepted too so new pages can ship without
// a schema change (values pass through unvalidated).
const (
	GroupWebsiteMode    = "website_mode"
	GroupGeneral        = "general"
	GroupFileUpload     = "file_upload"
	GroupPosts          = "posts"
	GroupEmail          = "email"
	GroupNodeJS         = "nodejs"
	GroupSocialLogin    = "social_login"
	GroupChatVideoAudio = "chat_video_audio"
)

// KnownGroups lists the groups with registered schemas.
func KnownGroups() []string {
	return []string{
		GroupWebsiteMode,
		GroupGeneral,
		GroupFileUpload,
		GroupPosts,
		GroupEmail,
		GroupNodeJS,
		GroupSocialLogin,
		GroupChatVideoAudio,
	}
}

// Store is the process-wide grouped configuration store. Read paths never
// fail: absent groups or keys resolve to the caller-supplied default.
type Store interface {
	Get(ctx context.Context, group, key, fallback string) string
	GetBool(ctx context.Context, group, key string, fallback bool) bool
	GetInt(ctx context.Context, group, key string, fallback int) int
	GetGroup(ctx context.Context, group string) map[string]string
	Update(ctx context.Context, group string, fields map[string]string) error
}
