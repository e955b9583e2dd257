// Package manifest loads, validates, and caches application manifests and
// builds each manifest's path classifier: the lookup structure the
// launcher consults to decide what access type (private, ro, rw,
// public-ro, public) a given filesystem path should get for a given
// application.
package manifest
