package http

import (
	"github.com/school-api-nosql/internal/infrastructure/dynamo"
	jwtinfra "github.com/school-api-nosql/internal/infrastructure/jwt"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	ClassRepo        *dynamo.ClassRepo
	MembershipRepo   *dynamo.MembershipRepo
	NotificationRepo *dynamo.NotificationRepo
	TargetRepo       *dynamo.TargetRepo
	JWTProvider      *jwtinfra.Provider
}
