package models

import "github.com/cbodonnell/gameportal/pkg/store"

const (
	GameSpecsPath        = "/gamePortal/gameSpecs"
	MatchesPath          = "/gamePortal/matches"
	UsersPath            = "/gamePortal/gamePortalUsers"
	PhoneNumberIndexPath = "/gamePortal/phoneNumberToUserId"
)

func GameSpecPath(gameSpecID string) string {
	return store.JoinPath(GameSpecsPath, gameSpecID)
}

func MatchPath(matchID string) string {
	return store.JoinPath(MatchesPath, matchID)
}

func MatchMembershipsPath(userID string) string {
	return store.JoinPath(UsersPath, userID, "privateButAddable", "matchMemberships")
}

func SignalsPath(userID string) string {
	return store.JoinPath(UsersPath, userID, "privateButAddable", "signals")
}

func PrivateFieldsPath(userID string) string {
	return store.JoinPath(UsersPath, userID, "privateFields")
}

func PublicFieldsPath(userID string) string {
	return store.JoinPath(UsersPath, userID, "publicFields")
}

func PhoneNumberPath(phoneNumber string) string {
	return store.JoinPath(PhoneNumberIndexPath, phoneNumber)
}
