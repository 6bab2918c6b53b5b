// Package http exposes the pod coordination API over chi.
//
// Every route lives under /v1 and exchanges JSON. Callers identify themselves with an
// optional `Authorization: Bearer <jwt>` header (HS256, claims sub/email/name); requests
// without one are anonymous and may only read and confirm links and read bookings.
//
//   - Pods: POST /pods, GET /pods, GET /pods/{token}, DELETE /pods/{token},
//     GET /pods/invite/{token}, POST /pods/{token}/invites {"emails"},
//     DELETE /pods/{token}/invites/{email}, POST /pods/{token}/join, POST /pods/{token}/hunt,
//     POST /pods/{token}/rerun, POST /pods/{token}/refresh, POST /pods/{token}/close.
//     Every mutation answers with the fresh `podDTO`.
//   - Goals: GET|POST /pods/{token}/goals, PATCH|DELETE /pods/{token}/goals/{goalID}.
//   - Links: GET /links/{username}, GET /share/{token}, POST /links/{username}/book,
//     POST /share/{token}/book, POST /share (issue a single-use link). The public link
//     routes are throttled per client address.
//   - Bookings: GET /bookings/{token}, POST /bookings/{token}/reschedule,
//     POST /bookings/{token}/cancel, PATCH /bookings/{token}/notes.
//
// Failures use the envelope {"error_code","message","errors"}.
package http
