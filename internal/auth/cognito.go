package auth

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/jarrod-lowe/jmap-service-core/internal/jmaperr"
	"github.com/jarrod-lowe/jmap-service-core/internal/jmaptypes"
)

// adminGroupName is the Cognito user-pool group that grants Principal
// lookups regardless of the per-config flag (§4.4).
const adminGroupName = "jmap-admins"

// CognitoAccessToken resolves the authenticated Cognito `sub` (extracted
// from the API Gateway authorizer claims by cmd/jmap-api, the same
// extraction pattern the real jmap-service-core's extractAccountID uses)
// into an AccessToken. This core is single-tenant-per-token: every
// account-scoped assertion is satisfied by the token's own primary
// account, and cross-account access is limited to what Copy's dual
// assertion (§4.4) explicitly allows at the dispatcher layer.
type CognitoAccessToken struct {
	primaryID   jmaptypes.Id
	state       string
	isSuperUser bool
}

// NewCognitoAccessToken resolves sub's group membership once at request
// entry and caches it for the life of the token, matching §5's
// "immutable after issuance" contract.
func NewCognitoAccessToken(ctx context.Context, client *cognitoidentityprovider.Client, userPoolID, sub string, primaryID jmaptypes.Id, state string) (*CognitoAccessToken, error) {
	out, err := client.AdminListGroupsForUser(ctx, &cognitoidentityprovider.AdminListGroupsForUserInput{
		UserPoolId: &userPoolID,
		Username:   &sub,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: list groups for %s: %w", sub, err)
	}
	return &CognitoAccessToken{
		primaryID:   primaryID,
		state:       state,
		isSuperUser: hasAdminGroup(out.Groups),
	}, nil
}

func hasAdminGroup(groups []types.GroupType) bool {
	for _, g := range groups {
		if g.GroupName != nil && *g.GroupName == adminGroupName {
			return true
		}
	}
	return false
}

func (t *CognitoAccessToken) PrimaryID() jmaptypes.Id { return t.primaryID }

func (t *CognitoAccessToken) State() string { return t.state }

func (t *CognitoAccessToken) IsSuperUser() bool { return t.isSuperUser }

func (t *CognitoAccessToken) AssertHasAccess(account jmaptypes.Id, collection string) error {
	if t.isSuperUser || account == t.primaryID {
		return nil
	}
	return jmaperr.Forbidden(fmt.Sprintf("no access to %s in account %s", collection, account))
}

func (t *CognitoAccessToken) AssertIsMember(account jmaptypes.Id) error {
	if t.isSuperUser || account == t.primaryID {
		return nil
	}
	return jmaperr.Forbidden(fmt.Sprintf("not a member of account %s", account))
}
