// Package hosted implements ai.AIProvider on the hosted OpenAI API using
// the go-openai client. HTTP status codes from the API are preserved in
// *ai.ProviderError so rate limits and server errors are retried upstream.
package hosted
