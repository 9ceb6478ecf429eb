package instagram

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// BaseURL is the host serving the private web API
	BaseURL = "https://i.instagram.com"

	// ProfileEndpoint is the endpoint pattern for user profiles
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// ProfileURLTemplate is the full profile URL with a {username} placeholder
	ProfileURLTemplate = BaseURL + ProfileEndpoint + "?username={username}"

	// AppID is the web application id Instagram expects in x-ig-app-id
	AppID = "936619743392459"

	// UserAgent is a desktop Chrome user agent sent with every request
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

	// RequestTimeout bounds a whole request, redirects and body read included
	RequestTimeout = 30 * time.Second

	// maxBodySize caps how much of a profile response is read
	maxBodySize = 10 << 20
)

// GetProfileURL constructs the URL for fetching a user's profile from base
func GetProfileURL(base, username string) string {
	if base == "" {
		base = BaseURL
	}
	params := url.Values{}
	params.Set("username", username)

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(base, "/"), ProfileEndpoint, params.Encode())
}
