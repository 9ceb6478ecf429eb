// Package instagram fetches public profile data from Instagram's
// web_profile_info endpoint and turns it into engagement results.
//
// A Client wraps exactly one *http.Client and makes exactly one request per
// call, so callers that rotate proxies build a new Client per attempt:
//
//	client := instagram.NewClient(httpClient, log)
//	result, err := client.FetchEngagement(ctx, "natgeo")
//	if err != nil {
//		// result.Error already holds the message, e.g. "HTTP Error: 429";
//		// err is an *errors.Error whose Type drives retry decisions.
//	}
//
// Every request carries the fixed x-ig-app-id and desktop User-Agent headers.
package instagram
