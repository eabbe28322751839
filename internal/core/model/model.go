// Package model defines the core domain types shared across the service.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Coordinates is the raw inbound value. Lives only on the call stack.
type Coordinates struct {
	Lat float64
	Lng float64
}

// CanonicalKey is the lossy, stable transform of Coordinates produced by
// the coordinate transformer. Equality is by field.
type CanonicalKey struct {
	Lat    float64
	Lng    float64
	Radius int
}

// String renders the key the way the cache layer expects it: "lat:lng:radius".
func (k CanonicalKey) String() string {
	return fmt.Sprintf("%.4f:%.4f:%d", k.Lat, k.Lng, k.Radius)
}

type Status string

const (
	StatusPending Status = "PENDING"
	StatusFound   Status = "FOUND"
	StatusEmpty   Status = "EMPTY"
	StatusError   Status = "ERROR"
)

// Terminal reports whether no further worker action is expected for this status.
func (s Status) Terminal() bool { return s != StatusPending }

// RequestRecord is the primary aggregate: one per live canonical key.
type RequestRecord struct {
	ID           uuid.UUID
	KeyLat       float64
	KeyLng       float64
	Radius       int
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (r RequestRecord) Key() CanonicalKey {
	return CanonicalKey{Lat: r.KeyLat, Lng: r.KeyLng, Radius: r.Radius}
}

func (r RequestRecord) Live() bool { return r.DeletedAt == nil }

type OSMType string

const (
	OSMWay      OSMType = "way"
	OSMRelation OSMType = "relation"
	OSMNode     OSMType = "node"
)

// LandmarkRecord is a child entity, globally identified by (OSMType, OSMID)
// among live rows. A row may be associated with more than one RequestRecord
// through the request_landmark join table.
type LandmarkRecord struct {
	ID        uuid.UUID
	OSMType   OSMType
	OSMID     int64
	Name      string
	Lat       float64
	Lng       float64
	Tags      map[string]string
	CreatedAt time.Time
	DeletedAt *time.Time
}

func (l LandmarkRecord) Live() bool { return l.DeletedAt == nil }

// LandmarkProjection is the read-side shape served to clients and cached
// under the "landmarks" namespace.
type LandmarkProjection struct {
	ID      uuid.UUID         `json:"id"`
	Name    string            `json:"name,omitempty"`
	OSMType OSMType           `json:"osmType"`
	OSMID   int64             `json:"osmId"`
	Lat     float64           `json:"lat"`
	Lng     float64           `json:"lng"`
	Tags    map[string]string `json:"tags"`
}

func ProjectLandmark(l LandmarkRecord) LandmarkProjection {
	return LandmarkProjection{
		ID:      l.ID,
		Name:    l.Name,
		OSMType: l.OSMType,
		OSMID:   l.OSMID,
		Lat:     l.Lat,
		Lng:     l.Lng,
		Tags:    l.Tags,
	}
}

// ProcessingMessage is the durable queue payload produced by the submission
// coordinator and consumed by the processing worker.
type ProcessingMessage struct {
	RequestID uuid.UUID `json:"requestId"`
	KeyLat    float64   `json:"keyLat"`
	KeyLng    float64   `json:"keyLng"`
	Radius    int       `json:"radius"`
}

func (m ProcessingMessage) Key() CanonicalKey {
	return CanonicalKey{Lat: m.KeyLat, Lng: m.KeyLng, Radius: m.Radius}
}

// SubmitResult is returned synchronously by the submission coordinator.
type SubmitResult struct {
	RequestID uuid.UUID
	Status    Status
}

// Response is the shape served by GetByID/GetByCoordinates.
type Response struct {
	Key       ResponseKey          `json:"key"`
	Count     int                  `json:"count"`
	RadiusM   int                  `json:"radiusMeters"`
	Source    string               `json:"source,omitempty"`
	Landmarks []LandmarkProjection `json:"landmarks"`
}

type ResponseKey struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ErrorKind enumerates the error kinds propagated through internal packages.
type ErrorKind string

const (
	ErrInvalidInput ErrorKind = "INVALID_INPUT"
	ErrAuthFailure  ErrorKind = "AUTH_FAILURE"
	ErrExternal     ErrorKind = "EXTERNAL_ERROR"
	ErrQueue        ErrorKind = "QUEUE_ERROR"
	ErrStore        ErrorKind = "STORE_ERROR"
	ErrInternal     ErrorKind = "INTERNAL_ERROR"
)

// Error is the typed error carried through internal packages; the router is
// the only place that renders it into the HTTP error envelope.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
