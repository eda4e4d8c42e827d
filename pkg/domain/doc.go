// Package domain contains the bookkeeping entities the application persists:
// users allowed into the admin interface and their login sessions. The types
// are free of infrastructure concerns so every storage engine and the HTTP
// layer can share them.
package domain
