package i18n

import (
	"context"

	"github.com/gin-gonic/gin"
)

// langKey is the key used to store language in context
type langKey struct{}

// LanguageMiddleware detects the user's language preference and sets it in context
func LanguageMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		ctx := context.WithValue(c.Request.Context(), langKey{}, lang)
		c.Request = c.Request.WithContext(ctx)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

// GetLanguageFromContext extracts the language from the request context
func GetLanguageFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok {
		return lang
	}
	return "en"
}

// TFromContext translates a key using the language from context
func TFromContext(ctx context.Context, key string) string {
	return TWithDataFromContext(ctx, key, nil)
}

// TWithDataFromContext translates a key with data using the language from context
func TWithDataFromContext(ctx context.Context, key string, data map[string]string) string {
	localizer, err := New(GetLanguageFromContext(ctx))
	if err != nil {
		return TWithData(key, data)
	}
	return localizer.TWithData(key, data)
}
