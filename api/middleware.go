package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	jwtMiddleware "github.com/gofiber/contrib/jwt"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
)

// JWTProtected specifies a route group requiring a valid bearer token.
// See: https://github.com/gofiber/contrib/jwt
func JWTProtected() func(*fiber.Ctx) error {
	jwtSecret := viper.GetString("api.auth.jwt_secret_key")
	config := jwtMiddleware.Config{
		SigningKey:   jwtMiddleware.SigningKey{Key: []byte(jwtSecret)},
		ContextKey:   "jwt", // used in private routes
		ErrorHandler: jwtError,
	}

	return jwtMiddleware.New(config)
}

// JWTProtectedWS is JWTProtected for the WebSocket routes (§4.4): a browser
// WebSocket client cannot set an Authorization header on the handshake
// request, so the bearer token rides in the "token" query parameter
// instead. Everything downstream (ResolveUser, ownership checks) is
// identical to the REST path — only where the token is read differs.
func JWTProtectedWS() func(*fiber.Ctx) error {
	jwtSecret := viper.GetString("api.auth.jwt_secret_key")
	config := jwtMiddleware.Config{
		SigningKey:   jwtMiddleware.SigningKey{Key: []byte(jwtSecret)},
		ContextKey:   "jwt",
		TokenLookup:  "query:token",
		ErrorHandler: jwtError,
	}

	return jwtMiddleware.New(config)
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).JSON(NewErrorResponse("invalid_request", err.Error()))
	}
	return c.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse("unauthorized", err.Error()))
}

// ResolveUser runs after JWTProtected: it mirrors the token's subject claim
// into a local User row (first-sight mirroring, §3: "Owned by the auth
// provider; mirrored into local storage on first sight") and stashes it in
// Locals("user") for handlers. Identity/authentication itself stays an
// external collaborator (spec.md §1) — this middleware never verifies
// anything the JWT middleware hasn't already verified.
func ResolveUser(database *db.DatabaseConnection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("jwt").(*jwt.Token)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse("unauthorized", "missing token"))
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse("unauthorized", "malformed claims"))
		}

		subject, _ := claims["sub"].(string)
		if subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse("unauthorized", "missing subject claim"))
		}
		displayName, _ := claims["name"].(string)
		email, _ := claims["email"].(string)

		user, err := database.GetOrCreateUserByExternalID(subject, displayName, email)
		if err != nil {
			log.Error().Err(err).Str("sub", subject).Msg("failed mirroring user from token")
			return c.Status(fiber.StatusInternalServerError).JSON(NewErrorResponse("internal", "failed to resolve user"))
		}
		if !user.Enabled {
			return c.Status(fiber.StatusForbidden).JSON(NewErrorResponse("forbidden", "user disabled"))
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// currentUser retrieves the user ResolveUser attached to this request.
func currentUser(c *fiber.Ctx) *db.User {
	user, _ := c.Locals("user").(*db.User)
	return user
}
