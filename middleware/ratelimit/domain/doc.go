// Package domain defines the contracts and value types for admission control.
//
// It does not depend on net/http or on any concrete store. Policies, derived
// keys, decisions and counter records live here so the application layer can
// be tested against fakes and the infra layer can be swapped.
package domain
