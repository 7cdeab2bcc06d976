package auth

import "github.com/google/uuid"

func newTokenID() string { return uuid.NewString() }
