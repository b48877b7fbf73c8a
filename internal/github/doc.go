// Package github fetches pull requests for review and posts critic findings
// back as pull-request reviews, using the go-github client.
//
// Read calls are retried with exponential backoff. Findings on lines present
// in the diff become inline comments; everything else goes in the review
// body.
package github
