package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ipAllowList rejects clients whose address falls outside every prefix.
func (s *Server) ipAllowList(prefixes []netip.Prefix) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if addr, err := netip.ParseAddr(ip); err == nil {
				addr = addr.Unmap()
				for _, p := range prefixes {
					if p.Contains(addr) {
						return next(c)
					}
				}
			}
			s.logger.Warn("api client not allowed", slog.String("remote_ip", ip))
			return jsonError(c, http.StatusForbidden, fmt.Sprintf("Your IP (%s) is not allowed to access this site.", ip))
		}
	}
}

// passwordGate requires password in the PWD header, the password query
// parameter or a posted password field.
func passwordGate(password string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:PWD,query:password,form:password",
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(password)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return jsonError(c, http.StatusUnauthorized, "Unauthorized")
		},
	})
}
