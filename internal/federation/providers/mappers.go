package providers

import (
	"fmt"
	"strings"

	"github.com/edustack/campusid/internal/federation/profile"
)

// canonicalKeys are dropped from Extra once mapped into a canonical slot.
var canonicalKeys = map[string]struct{}{
	"sub": {}, "id": {}, "email": {},
	"given_name": {}, "family_name": {}, "name": {},
	"first_name": {}, "last_name": {},
	"picture": {}, "avatar_url": {}, "locale": {}, "login": {},
}

// mapGoogleProfile: sub / email / given_name / family_name / name / picture.
func mapGoogleProfile(raw map[string]any) profile.Profile {
	return profile.Profile{
		ID:          rawString(raw, "sub"),
		Email:       rawString(raw, "email"),
		FirstName:   rawString(raw, "given_name"),
		LastName:    rawString(raw, "family_name"),
		DisplayName: rawString(raw, "name"),
		PictureURL:  rawString(raw, "picture"),
		Locale:      rawString(raw, "locale"),
		Extra:       leftover(raw),
	}
}

// mapFacebookProfile: id / email / first_name / last_name / name /
// picture.data.url (nested).
func mapFacebookProfile(raw map[string]any) profile.Profile {
	return profile.Profile{
		ID:          rawString(raw, "id"),
		Email:       rawString(raw, "email"),
		FirstName:   rawString(raw, "first_name"),
		LastName:    rawString(raw, "last_name"),
		DisplayName: rawString(raw, "name"),
		PictureURL:  dig(raw, "picture", "data", "url"),
		Locale:      rawString(raw, "locale"),
		Extra:       leftover(raw),
	}
}

// mapGitHubProfile: id / email / name partido en el primer espacio /
// login como display / avatar_url.
func mapGitHubProfile(raw map[string]any) profile.Profile {
	first, last := splitName(rawString(raw, "name"))
	return profile.Profile{
		ID:          rawString(raw, "id"),
		Email:       rawString(raw, "email"),
		FirstName:   first,
		LastName:    last,
		DisplayName: rawString(raw, "login"),
		PictureURL:  rawString(raw, "avatar_url"),
		Extra:       leftover(raw),
	}
}

// rawString tolera ids numéricos (GitHub/Facebook devuelven números JSON).
func rawString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".")
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

// dig navega mapas anidados (picture.data.url).
func dig(m map[string]any, keys ...string) string {
	cur := m
	for i, k := range keys {
		if i == len(keys)-1 {
			return rawString(cur, k)
		}
		next, ok := cur[k].(map[string]any)
		if !ok {
			return ""
		}
		cur = next
	}
	return ""
}

// splitName parte un nombre completo en el primer espacio.
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}

// leftover conserva los atributos sin slot canónico.
func leftover(raw map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range raw {
		if _, canonical := canonicalKeys[k]; canonical {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}
