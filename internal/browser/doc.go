// Package browser drives persistent Chromium profiles for the generator and
// distributor sites.
//
// Session is the contract the pipelines program against. RodSession
// implements it over the Chrome DevTools Protocol with go-rod; every element
// lookup goes through FindWith, which walks the selector registry's ordering
// and feeds the outcome back into it. Profiles are locked so two pipelines
// never share one, and the HTTP caches are cleared each time a profile opens.
package browser
