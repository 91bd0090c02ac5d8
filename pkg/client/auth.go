package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	cognitosrp "github.com/alexrudd/cognito-srp/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cubohome/cubod/pkg/session"
	"github.com/cubohome/cubod/pkg/utils"
)

// Login - performs the Cognito SRP handshake and the Cubo mobile login,
// persisting the resulting credential pair and session metadata.
// Returns *MFARequiredError when the account has a multi-factor challenge
// pending; complete it with LoginMFA.
func (c *CuboClient) Login(ctx context.Context, username string, password string) error {
	log.Info().Str("username", username).Msg("Authorizing using user credentials")

	idp, err := c.cognitoClient(ctx)
	if err != nil {
		return err
	}

	csrp, err := cognitosrp.NewCognitoSRP(username, password, CognitoPoolID, CognitoClientID, aws.String(CognitoClientSecret))
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	initResp, err := idp.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       ciptypes.AuthFlowTypeUserSrpAuth,
		ClientId:       aws.String(csrp.GetClientId()),
		AuthParameters: csrp.GetAuthParams(),
	})
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	if initResp.ChallengeName != ciptypes.ChallengeNameTypePasswordVerifier {
		return &AuthError{Op: "login", Err: errors.New("unexpected auth challenge " + string(initResp.ChallengeName))}
	}

	challengeResponses, err := csrp.PasswordVerifierChallenge(initResp.ChallengeParameters, time.Now())
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	verifyResp, err := idp.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ClientId:           aws.String(csrp.GetClientId()),
		ChallengeName:      ciptypes.ChallengeNameTypePasswordVerifier,
		ChallengeResponses: challengeResponses,
	})
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	switch verifyResp.ChallengeName {
	case ciptypes.ChallengeNameTypeSmsMfa, ciptypes.ChallengeNameTypeSoftwareTokenMfa:
		mfaUsername := username
		if v, ok := verifyResp.ChallengeParameters["USER_ID_FOR_SRP"]; ok {
			mfaUsername = v
		}

		return &MFARequiredError{
			Session:   aws.ToString(verifyResp.Session),
			Challenge: string(verifyResp.ChallengeName),
			Username:  mfaUsername,
		}
	}

	if verifyResp.AuthenticationResult == nil {
		return &AuthError{Op: "login", Err: errors.New("missing authentication result")}
	}

	return c.finishLogin(ctx, username, verifyResp.AuthenticationResult)
}

// LoginMFA - completes a pending multi-factor challenge and finishes the login
func (c *CuboClient) LoginMFA(ctx context.Context, mfa *MFARequiredError, code string) error {
	idp, err := c.cognitoClient(ctx)
	if err != nil {
		return err
	}

	codeKey := "SMS_MFA_CODE"
	if mfa.Challenge == string(ciptypes.ChallengeNameTypeSoftwareTokenMfa) {
		codeKey = "SOFTWARE_TOKEN_MFA_CODE"
	}

	resp, err := idp.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ClientId:      aws.String(CognitoClientID),
		ChallengeName: ciptypes.ChallengeNameType(mfa.Challenge),
		Session:       aws.String(mfa.Session),
		ChallengeResponses: map[string]string{
			"USERNAME":    mfa.Username,
			codeKey:       code,
			"SECRET_HASH": secretHash(mfa.Username),
		},
	})
	if err != nil {
		return &AuthError{Op: "mfa", Err: err}
	}

	if resp.AuthenticationResult == nil {
		return &AuthError{Op: "mfa", Err: errors.New("missing authentication result")}
	}

	return c.finishLogin(ctx, mfa.Username, resp.AuthenticationResult)
}

func (c *CuboClient) cognitoClient(ctx context.Context) (*cip.Client, error) {
	// The user pool endpoints are unauthenticated; no AWS credentials needed
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(CognitoRegion),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}

	return cip.NewFromConfig(cfg), nil
}

func (c *CuboClient) finishLogin(ctx context.Context, username string, auth *ciptypes.AuthenticationResultType) error {
	mobileUUID := decodeSubject(aws.ToString(auth.IdToken))
	if mobileUUID == "" {
		mobileUUID = uuid.NewString()
		log.Warn().Msg("Unable to decode subject from id token, generated mobile UUID instead")
	}

	userAgent := c.SessionStore.Session().UserAgent
	if userAgent == "" {
		userAgent = RandomUserAgent()
	}

	pair, err := c.mobileLogin(ctx, mobileUUID, username, aws.ToString(auth.AccessToken), userAgent)
	if err != nil {
		return err
	}

	if err := c.SessionStore.SavePair(pair); err != nil {
		return err
	}

	if err := c.SessionStore.SaveSession(session.Session{
		Username:   username,
		MobileUUID: mobileUUID,
		UserAgent:  userAgent,
	}); err != nil {
		return err
	}

	log.Info().Str("access_token", utils.AnonymizeToken(pair.AccessToken, 4)).Msg("Authorized")
	return nil
}

// mobileLogin - exchanges the Cognito access token for the vendor credential pair
func (c *CuboClient) mobileLogin(ctx context.Context, mobileUUID string, username string, cognitoToken string, userAgent string) (session.Pair, error) {
	const op = "mobile login"

	body, err := json.Marshal(map[string]interface{}{
		"version":      "2396",
		"lang":         "en",
		"mobile_uuid":  mobileUUID,
		"provider":     "Yun",
		"push_token":   "dummy-token",
		"timezone":     0,
		"tp":           "Android",
		"uid_p":        mobileUUID,
		"uname_p":      username,
		"device_model": "sdk_gphone64_x86_64",
		"zone_name":    "GMT",
	})
	if err != nil {
		return session.Pair{}, &ProtocolError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.MobileAPIBase+"/v2/user/login", bytes.NewReader(body))
	if err != nil {
		return session.Pair{}, &ProtocolError{Op: op, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("x-cb-authorization", "Bearer "+cognitoToken)
	req.Header.Set("x-cspp-authorization", "")
	req.Header.Set("x-refresh-authorization", "")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return session.Pair{}, &TransientError{Op: op, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return session.Pair{}, &AuthError{Op: op}
	case res.StatusCode >= 500:
		return session.Pair{}, &TransientError{Op: op, StatusCode: res.StatusCode}
	case res.StatusCode != http.StatusOK:
		return session.Pair{}, &ProtocolError{Op: op, StatusCode: res.StatusCode}
	}

	payload := new(mobileLoginResponsePayload)
	if err := json.NewDecoder(res.Body).Decode(payload); err != nil {
		return session.Pair{}, &ProtocolError{Op: op, Err: err}
	}

	if payload.Data.AccessToken == "" || payload.Data.RefreshToken == "" {
		return session.Pair{}, &ProtocolError{Op: op, Err: errors.New("response carries no credential pair")}
	}

	return session.Pair{
		AccessToken:  payload.Data.AccessToken,
		RefreshToken: payload.Data.RefreshToken,
	}, nil
}

// decodeSubject - extracts the sub claim without verifying the signature;
// the token is only used to derive the mobile UUID, never trusted
func decodeSubject(idToken string) string {
	if idToken == "" {
		return ""
	}

	token, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err != nil {
		return ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}

	sub, _ := claims["sub"].(string)
	return sub
}

func secretHash(username string) string {
	mac := hmac.New(sha256.New, []byte(CognitoClientSecret))
	mac.Write([]byte(username + CognitoClientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
