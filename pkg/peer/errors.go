package peer

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	//ErrServerNotReachable is returned when the peer cannot be contacted
	ErrServerNotReachable = errors.New("server not reachable")

	//ErrForbiddenByServerSettings is returned when the peer record or the
	//peer's advertised permissions do not allow the requested sync
	ErrForbiddenByServerSettings = errors.New("forbidden by server settings")

	//ErrInvalidServerVersion is returned when the peer version cannot be
	//parsed or is too old
	ErrInvalidServerVersion = errors.New("invalid server version")

	//ErrInvalidAPIResponse is returned when a peer response cannot be decoded
	ErrInvalidAPIResponse = errors.New("invalid API response")

	//ErrNotFound is returned when the peer does not hold the requested entity
	ErrNotFound = errors.New("not found on remote server")
)

//APIError describes a non successful HTTP response from a peer
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: remote server returned %d: %s", e.Op, e.StatusCode, e.Body)
}

//Is allows errors.Is(err, ErrNotFound) for 404 responses
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

//IsConflict reports whether err signals that the entity already exists on the peer
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict
}
