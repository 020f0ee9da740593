package httpserver

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/origin"
)

// originMiddleware rejects requests from disallowed browser origins with 403
// and answers CORS for allowed ones. Requests without an Origin header pass
// through untouched.
func originMiddleware(policy origin.Policy) Middleware {
	c := cors.New(cors.Options{
		AllowOriginVaryRequestFunc: func(r *http.Request, _ string) (bool, []string) {
			_, _, ok := policy.Check(r)
			return ok, nil
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "X-API-Key", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	return func(next http.Handler) http.Handler {
		guarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, present, ok := policy.Check(r); present && !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		return c.Handler(guarded)
	}
}
