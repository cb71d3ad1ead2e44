// Package services provides the HTTP transport used by the query engine.
//
// [APIService] implements [Catalog]: signed catalog requests built from a path and parameter list,
// and raw fetches for cover images. Requests are paced by a [rate.Limiter] and authenticated from an
// [oauth2.TokenSource] carrying the user auth token.
package services
