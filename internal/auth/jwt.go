// Package auth provides authentication and authorization mechanisms for Evident.
// This file implements JSON Web Token (JWT) authentication using HMAC-SHA256 signing.
//
// JWT AUTHENTICATION OVERVIEW:
//
// Evident uses JWTs as the primary authentication mechanism for API requests.
// Tokens are issued after successful login and must be included in the Authorization
// header of subsequent requests.
//
// TOKEN LIFECYCLE:
//
// 1. User logs in with username/password (or SSO)
// 2. System validates credentials
// 3. GenerateToken creates a signed JWT with user claims
// 4. Client stores token (typically in localStorage or httpOnly cookie)
// 5. Client includes token in Authorization header: "Bearer <token>"
// 6. Middleware validates token on each request
// 7. Token expires after configured duration (default: 24 hours)
// 8. User can refresh token within 7-day window before expiration
// 9. After expiration, user must re-authenticate
//
// SECURITY FEATURES:
//
// - HMAC-SHA256 signing prevents token tampering
// - Tokens include expiration time to limit exposure window
// - Refresh tokens only work within 7-day window (prevents infinite refresh)
// - Issuer claim prevents cross-site token reuse
// - NotBefore claim prevents premature token usage
// - Algorithm verification prevents algorithm substitution attacks
//
// TOKEN STRUCTURE:
//
// Header:
//
//	{
//	  "alg": "HS256",       // HMAC-SHA256 signing algorithm
//	  "typ": "JWT"          // Token type
//	}
//
// Payload (Claims):
//
//	{
//	  "user_id": "user123",      // Internal user ID
//	  "username": "john.doe",    // Username for display
//	  "email": "john@example.com", // Email address
//	  "role": "user",            // Role: "admin", "operator", or "user"
//	  "groups": ["team-a"],      // Group memberships
//	  "iss": "evident-api",  // Issuer (prevents cross-site reuse)
//	  "sub": "user123",          // Subject (same as user_id)
//	  "iat": 1700000000,         // Issued at timestamp
//	  "exp": 1700086400,         // Expiration timestamp
//	  "nbf": 1700000000          // Not before timestamp
//	}
//
// Signature:
//
//	HMACSHA256(
//	  base64UrlEncode(header) + "." + base64UrlEncode(payload),
//	  secret_key
//	)
//
// SECURITY BEST PRACTICES:
//
// 1. Secret Key Management:
//   - NEVER hardcode secret keys in source code
//   - Load from environment variables or secret management systems
//   - Use cryptographically random keys (at least 256 bits)
//   - Rotate keys periodically (requires token invalidation strategy)
//
// 2. Token Storage (Client-Side):
//   - Prefer httpOnly cookies over localStorage (prevents XSS attacks)
//   - Use SameSite=Strict cookie attribute (prevents CSRF)
//   - Set Secure flag for HTTPS-only transmission
//   - Consider short-lived tokens with refresh token strategy
//
// 3. Token Validation:
//   - Always verify signature before trusting claims
//   - Check expiration time (exp claim)
//   - Verify issuer matches expected value (iss claim)
//   - Validate algorithm to prevent algorithm substitution attacks
//   - Consider implementing token revocation list for compromised tokens
//
// 4. Attack Prevention:
//   - Algorithm substitution: Verify signing method is HMAC (not "none")
//   - Token replay: Use short expiration times and refresh mechanism
//   - XSS: Store tokens in httpOnly cookies, not localStorage
//   - CSRF: Include CSRF tokens or use SameSite cookies
//   - Token theft: Use HTTPS only, short-lived tokens, rotation
//
// COMMON VULNERABILITIES TO AVOID:
//
// ❌ Accepting tokens with "alg": "none" (no signature)
// ❌ Not validating token expiration
// ❌ Using weak secret keys (< 256 bits)
// ❌ Storing sensitive data in token payload (it's base64, not encrypted!)
// ❌ Not using HTTPS (tokens can be intercepted)
// ❌ Infinite token refresh (allows stolen tokens to live forever)
//
// For more details on JWT security, see:
// - https://auth0.com/blog/critical-vulnerabilities-in-json-web-token-libraries/
// - https://owasp.org/www-project-web-security-testing-guide/latest/4-Web_Application_Security_Testing/06-Session_Management_Testing/10-Testing_JSON_Web_Tokens
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/DTMBX/evident/internal/cache"
)

// JWTConfig holds JWT configuration.
//
// SECURITY: SecretKey must be cryptographically random and at least 256 bits.
// Never hardcode this value - load from environment variables or secrets management.
//
// Example configuration:
//
//	config := &JWTConfig{
//	    SecretKey:     os.Getenv("JWT_SECRET_KEY"),  // From environment
//	    Issuer:        "evident-api",             // Your API identifier
//	    TokenDuration: 24 * time.Hour,                // 24-hour token lifetime
//	}
type JWTConfig struct {
	// SecretKey is the HMAC signing key for tokens.
	// SECURITY: Must be cryptographically random (use crypto/rand).
	// Minimum length: 32 bytes (256 bits) for HS256.
	// Example generation: openssl rand -base64 32
	SecretKey string

	// Issuer identifies who issued the token (typically your API name).
	// Used to prevent tokens from one system being used on another.
	// Default: "evident-api"
	Issuer string

	// TokenDuration is how long tokens remain valid.
	// Balance security (shorter is better) with user experience.
	// Recommended: 1-24 hours for web apps, 15-60 minutes for APIs.
	// Default: 24 hours
	TokenDuration time.Duration
}

// Claims represents custom JWT claims for Evident users.
//
// This struct extends the standard JWT claims with Evident-specific
// user information. All fields are included in the token payload (which is
// base64-encoded, NOT encrypted).
//
// SECURITY WARNING: Do not include sensitive information in claims!
// - ❌ DON'T include passwords, API keys, credit card numbers
// - ❌ DON'T include SSNs, health data, or other PII beyond what's necessary
// - ✅ DO include user IDs, roles, and group memberships
// - ✅ DO keep claim data minimal to reduce token size
//
// Token payload is visible to anyone with the token (it's only base64-encoded).
// Only the signature prevents tampering, not visibility.
type Claims struct {
	// UserID is the unique internal identifier for the user.
	// Used to look up user details in the database.
	// Also set in the standard "sub" (subject) claim.
	UserID string `json:"user_id"`

	// Username is the user's login name.
	// Used for display purposes and audit logs.
	Username string `json:"username"`

	// Email is the user's email address.
	// Used for notifications and account recovery.
	Email string `json:"email"`

	// Role defines the user's permission level.
	// Values: "admin", "operator", "user"
	// - admin: Full system access (all APIs, all users)
	// - operator: Platform management (view all, manage resources)
	// - user: Standard access (own sessions only)
	Role string `json:"role"`

	// Groups lists the teams/groups the user belongs to.
	// Used for team-based resource sharing and quotas.
	// Omitted from token if user has no group memberships.
	Groups []string `json:"groups,omitempty"`

	// RegisteredClaims contains standard JWT claims:
	// - iss (issuer): Who created the token
	// - sub (subject): User ID (same as UserID above)
	// - iat (issued at): When token was created
	// - exp (expiration): When token expires
	// - nbf (not before): When token becomes valid
	jwt.RegisteredClaims
}

// JWTManager handles JWT token operations
type JWTManager struct {
	config       *JWTConfig
	sessionStore *SessionStore
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(config *JWTConfig) *JWTManager {
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour // Default 24 hours
	}
	if config.Issuer == "" {
		config.Issuer = "evident-api"
	}
	return &JWTManager{
		config: config,
	}
}

// SetSessionStore sets the session store for server-side session tracking
func (m *JWTManager) SetSessionStore(store *SessionStore) {
	m.sessionStore = store
}

// NewJWTManagerWithSessions creates a new JWT manager with session tracking
func NewJWTManagerWithSessions(config *JWTConfig, cacheClient cache.Cache) *JWTManager {
	manager := NewJWTManager(config)
	manager.sessionStore = NewSessionStore(cacheClient)
	return manager
}

// GetSessionStore returns the session store
func (m *JWTManager) GetSessionStore() *SessionStore {
	return m.sessionStore
}

// GenerateToken generates a new JWT token for a user.
//
// This function creates a cryptographically signed JWT token containing user
// identity and permission information. The token is signed using HMAC-SHA256
// to prevent tampering.
//
// TOKEN GENERATION PROCESS:
//
// 1. Create Claims:
//   - User identity: UserID, Username, Email
//   - Permissions: Role (admin/operator/user), Groups
//   - Standard claims: Issuer, Subject, IssuedAt, ExpiresAt, NotBefore
//
// 2. Create Token:
//   - Header: {"alg": "HS256", "typ": "JWT"}
//   - Payload: Base64URL(claims JSON)
//   - Signature: HMACSHA256(header + payload, secret_key)
//
// 3. Return Token:
//   - Format: "header.payload.signature" (base64url-encoded)
//   - Example: "eyJhbGc...header.eyJ1c2VyX2lk...payload.SflKxwRJ...signature"
//
// SECURITY CONSIDERATIONS:
//
// - Uses HS256 (HMAC-SHA256) signing algorithm
//   - Symmetric key (same key for signing and verification)
//   - 256-bit security strength
//   - Fast and secure for server-to-server authentication
//
// - Includes expiration time (exp claim)
//   - Tokens automatically become invalid after TokenDuration
//   - Default: 24 hours
//   - Limits damage from stolen tokens
//
// - Includes "not before" time (nbf claim)
//   - Token cannot be used before creation time
//   - Prevents premature token usage
//
// - Includes issuer (iss claim)
//   - Identifies the token creator
//   - Prevents tokens from other systems being accepted
//
// USAGE EXAMPLE:
//
//	manager := NewJWTManager(&JWTConfig{
//	    SecretKey:     "your-secret-key-min-32-bytes",
//	    Issuer:        "evident-api",
//	    TokenDuration: 24 * time.Hour,
//	})
//
//	token, err := manager.GenerateToken(
//	    "user123",           // userID
//	    "john.doe",          // username
//	    "john@example.com",  // email
//	    "user",              // role
//	    []string{"team-a"},  // groups
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Token can now be sent to client
//	// Client includes in requests: Authorization: Bearer <token>
//
// PARAMETERS:
//   - userID: Unique user identifier (required, non-empty)
//   - username: Display name for user (required, non-empty)
//   - email: User's email address (required for notifications)
//   - role: Permission level - "admin", "operator", or "user"
//   - groups: Team/group memberships (can be empty array or nil)
//
// RETURNS:
//   - string: Signed JWT token ready for transmission to client
//   - error: If token signing fails (should never happen with valid config)
//
// COMMON ERRORS:
//   - "failed to sign token": SecretKey is invalid or empty
//
// NOTE: The generated token contains sensitive information (user identity, role).
// Always transmit tokens over HTTPS to prevent interception.
func (m *JWTManager) GenerateToken(userID, username, email, role string, groups []string) (string, error) {
	// Use background context for backward compatibility
	return m.GenerateTokenWithContext(context.Background(), userID, username, email, role, groups, "", "")
}

// GenerateTokenWithContext generates a new JWT token with session tracking
func (m *JWTManager) GenerateTokenWithContext(ctx context.Context, userID, username, email, role string, groups []string, ipAddress, userAgent string) (string, error) {
	// Get current time for timestamp claims
	now := time.Now()
	expiresAt := now.Add(m.config.TokenDuration)

	// Generate unique session ID for server-side tracking
	sessionID, err := GenerateSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}

	// STEP 1: Build Claims structure
	// This includes both custom claims (user info) and standard JWT claims
	claims := &Claims{
		// Custom claims - Evident-specific user information
		UserID:   userID,
		Username: username,
		Email:    email,
		Role:     role,
		Groups:   groups,

		// Standard JWT claims - defined by RFC 7519
		RegisteredClaims: jwt.RegisteredClaims{
			// ID (jti): Unique identifier for this token (session ID)
			// Used for server-side session tracking and revocation
			ID: sessionID,

			// Issuer (iss): Identifies who created the token
			// Used to prevent tokens from other systems being accepted
			Issuer: m.config.Issuer,

			// Subject (sub): The principal the token is about (user ID)
			// Typically the same as our custom UserID claim
			Subject: userID,

			// Issued At (iat): When the token was created
			// Used for audit logs and token age calculation
			IssuedAt: jwt.NewNumericDate(now),

			// Expires At (exp): When the token expires
			// SECURITY: Limits exposure window for stolen tokens
			// Default: 24 hours from now
			ExpiresAt: jwt.NewNumericDate(expiresAt),

			// Not Before (nbf): Token cannot be used before this time
			// Prevents premature token usage (e.g., for scheduled access)
			// Set to current time (token valid immediately)
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	// STEP 2: Create unsigned token with HS256 signing method
	// SECURITY: We explicitly specify HMAC-SHA256 to prevent algorithm substitution attacks
	// Never accept tokens with "alg": "none" or asymmetric algorithms like RS256
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// STEP 3: Sign the token using the secret key
	// This creates the signature: HMACSHA256(header + payload, secret_key)
	// The signature proves the token hasn't been tampered with
	tokenString, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		// This should only fail if secret key is invalid (empty or nil)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	// STEP 4: Store session in Redis for server-side tracking
	if m.sessionStore != nil && m.sessionStore.IsEnabled() {
		session := &SessionData{
			SessionID: sessionID,
			UserID:    userID,
			Username:  username,
			Role:      role,
			CreatedAt: now,
			ExpiresAt: expiresAt,
			IPAddress: ipAddress,
			UserAgent: userAgent,
		}

		if err := m.sessionStore.CreateSession(ctx, session, m.config.TokenDuration); err != nil {
			// Log the error but don't fail token generation
			// This allows graceful degradation if Redis is temporarily unavailable
			fmt.Printf("Warning: Failed to store session in Redis: %v\n", err)
		}
	}

	// Return the complete token: "header.payload.signature"
	return tokenString, nil
}

// InvalidateSession invalidates a session by its ID (logout)
func (m *JWTManager) InvalidateSession(ctx context.Context, sessionID string) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.DeleteSession(ctx, sessionID)
}

// InvalidateUserSessions invalidates all sessions for a user
func (m *JWTManager) InvalidateUserSessions(ctx context.Context, userID string) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.DeleteUserSessions(ctx, userID)
}

// ValidateSession checks if a session is valid (exists in Redis)
func (m *JWTManager) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	if m.sessionStore == nil {
		// No session store = all sessions valid (backward compatibility)
		return true, nil
	}
	return m.sessionStore.ValidateSession(ctx, sessionID)
}

// ClearAllSessions clears all sessions (force re-login on restart)
func (m *JWTManager) ClearAllSessions(ctx context.Context) error {
	if m.sessionStore == nil {
		return nil
	}
	return m.sessionStore.ClearAllSessions(ctx)
}

// ValidateToken validates a JWT token and returns the claims.
//
// This function performs comprehensive validation of a JWT token, including:
// - Signature verification (prevents tampering)
// - Algorithm verification (prevents algorithm substitution attacks)
// - Expiration checking (ensures token hasn't expired)
// - Claim extraction (returns user information)
//
// VALIDATION PROCESS:
//
// 1. Parse Token:
//   - Split token into header, payload, signature
//   - Base64URL-decode header and payload
//   - Parse claims into Claims struct
//
// 2. Verify Algorithm:
//   - SECURITY: Check that algorithm is HMAC (not "none" or asymmetric)
//   - Prevent algorithm substitution attacks
//   - Reject tokens using unexpected signing methods
//
// 3. Verify Signature:
//   - Compute HMACSHA256(header + payload, secret_key)
//   - Compare with signature in token
//   - Reject if signatures don't match (token was tampered with)
//
// 4. Verify Expiration:
//   - Check exp claim against current time
//   - Reject if token has expired
//
// 5. Verify Not Before:
//   - Check nbf claim against current time
//   - Reject if token is being used too early
//
// 6. Return Claims:
//   - Extract user information from validated token
//   - Safe to trust claims after validation succeeds
//
// SECURITY: ALGORITHM SUBSTITUTION ATTACK PREVENTION
//
// This function explicitly verifies the signing method is HMAC before accepting
// the token. This prevents a critical vulnerability where attackers could:
//
// 1. Take a valid token signed with HS256
// 2. Change algorithm to "none" in header
// 3. Remove signature
// 4. Server accepts token without verification
//
// Or asymmetric algorithm substitution:
//
// 1. Take a valid HS256 token
// 2. Change algorithm to RS256 (RSA public key)
// 3. Sign with HMAC using the public key (known to attacker)
// 4. Server treats public key as symmetric key and validates successfully
//
// By verifying token.Method is *jwt.SigningMethodHMAC, we reject both attacks.
//
// USAGE EXAMPLE:
//
//	// In middleware
//	authHeader := c.Request.Header.Get("Authorization")
//	if !strings.HasPrefix(authHeader, "Bearer ") {
//	    c.AbortWithStatus(401)
//	    return
//	}
//
//	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
//	claims, err := jwtManager.ValidateToken(tokenString)
//	if err != nil {
//	    c.JSON(401, gin.H{"error": "Invalid token"})
//	    return
//	}
//
//	// Token is valid - extract user info
//	userID := claims.UserID
//	role := claims.Role
//	c.Set("user_id", userID)
//	c.Set("role", role)
//	c.Next()
//
// PARAMETERS:
//   - tokenString: JWT token in format "header.payload.signature"
//     Typically extracted from Authorization header: "Bearer <token>"
//
// RETURNS:
//   - *Claims: User information and metadata from validated token
//   - error: Validation failure (tampered token, expired, wrong algorithm, etc.)
//
// COMMON ERRORS:
//   - "unexpected signing method": Token uses wrong algorithm (attack attempt)
//   - "failed to parse token: token is expired": Token exp claim has passed
//   - "invalid token": Token signature verification failed (tampered)
//   - "token used before issued": nbf (not before) claim is in future
//
// SECURITY NOTE: Never skip validation even for "trusted" tokens.
// Always validate signature, expiration, and algorithm.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	// Parse and validate the token
	// The callback function is called during parsing to provide the secret key
	// and verify the signing algorithm
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// SECURITY: Verify signing method to prevent algorithm substitution attacks
		//
		// CRITICAL: This check prevents two major attacks:
		//
		// 1. "none" algorithm attack:
		//    Attacker sets "alg": "none" and removes signature
		//    Without this check, token would be accepted without verification
		//
		// 2. Asymmetric algorithm substitution:
		//    Attacker changes HS256 to RS256 and signs with known public key
		//    Server would use public key as HMAC secret and accept malicious token
		//
		// By verifying token.Method is *jwt.SigningMethodHMAC, we reject both attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			// Reject tokens using unexpected algorithms
			// This includes "none", RS256, ES256, and other non-HMAC algorithms
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Return the secret key for signature verification
		// jwt library will use this to verify: HMACSHA256(header + payload, key) == signature
		return []byte(m.config.SecretKey), nil
	})

	if err != nil {
		// Token parsing or validation failed
		// Common reasons:
		// - Token expired (exp claim passed)
		// - Token used before nbf (not before) claim
		// - Malformed token (invalid base64, missing parts)
		// - Signature verification failed (token was tampered with)
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	// Extract claims from the validated token
	// Type assertion to convert from jwt.Claims interface to *Claims
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		// This should rarely happen if parsing succeeded
		// Possible causes:
		// - Claims don't match expected structure
		// - Token marked as invalid by jwt library
		return nil, errors.New("invalid token")
	}

	// Token is valid and claims extracted successfully
	// Safe to trust all claim values now (signature was verified)
	return claims, nil
}

// RefreshToken generates a new token with extended expiration.
//
// This function allows users to get a new token without re-authenticating,
// but only within a specific time window before expiration. This balances
// security (limiting lifetime of compromised tokens) with user experience
// (avoiding frequent re-authentication).
//
// REFRESH WINDOW LOGIC:
//
// Tokens can only be refreshed when they have between 0 and 7 days remaining:
//
//	Token Age          | Remaining Time | Refresh Allowed?
//	-------------------|----------------|------------------
//	Fresh (< 17 days)  | > 7 days       | ❌ No (too early)
//	Middle (17-24 days)| 0-7 days       | ✅ Yes (refresh window)
//	Expired (> 24 days)| < 0 days       | ❌ No (expired)
//
// WHY 7-DAY WINDOW?
//
// 1. Prevents Infinite Token Life:
//   - Without a window, users could refresh tokens forever
//   - A stolen token could be refreshed indefinitely by an attacker
//   - 7-day window limits exposure: max token age = 24 days (17 + 7)
//
// 2. Balances Security vs UX:
//   - Too short (e.g., 1 day): Frequent re-authentication annoys users
//   - Too long (e.g., 30 days): Compromised tokens live too long
//   - 7 days: Provides flexibility while limiting risk
//
// 3. Forces Periodic Re-Authentication:
//   - Every 24 days (at most), users must provide credentials again
//   - Ensures disabled accounts eventually lose access
//   - Gives time to detect and respond to account compromises
//
// TOKEN REFRESH FLOW:
//
// Day 0:  User logs in, gets token (expires Day 24)
// Day 10: User tries to refresh -> "too early" (14 days remaining)
// Day 18: User tries to refresh -> Success! (6 days remaining)
//
//	New token issued (expires Day 42)
//
// Day 25: User tries to refresh old token -> "expired"
//
//	New token still valid until Day 42
//
// Day 36: User tries to refresh -> Success! (6 days remaining)
//
//	New token issued (expires Day 60)
//
// SECURITY CONSIDERATIONS:
//
// 1. Refresh Uses Validation:
//   - Old token is fully validated before refresh (signature, expiration)
//   - Cannot refresh invalid or tampered tokens
//   - Cannot refresh tokens with wrong algorithm
//
// 2. Window Prevents Infinite Refresh:
//   - Tokens > 7 days from expiration cannot be refreshed
//   - Limits max token age even with continuous refresh
//   - Forces re-authentication every ~24-30 days
//
// 3. Expired Tokens Rejected:
//   - Cannot refresh tokens that have already expired
//   - Expired tokens must go through full authentication
//
// 4. New Token Has Same Claims:
//   - User ID, role, groups copied from old token
//   - Cannot escalate privileges by refreshing
//   - Only timestamps are updated (iat, exp, nbf)
//
// ALTERNATIVE APPROACHES:
//
// Other common refresh strategies (for comparison):
//
// 1. Separate Refresh Tokens:
//   - Short-lived access tokens (15 min) + long-lived refresh tokens (30 days)
//   - More complex: requires two token types
//   - Better security: compromised access token expires quickly
//
// 2. Sliding Expiration:
//   - Each API call extends token expiration
//   - Simple implementation
//   - Risk: Stolen tokens never expire if used regularly
//
// 3. No Refresh:
//   - Tokens expire and user must re-authenticate
//   - Maximum security
//   - Poor UX: frequent logins annoy users
//
// Evident uses the 7-day window approach as a balance between these extremes.
//
// USAGE EXAMPLE:
//
//	// In API endpoint /api/v1/auth/refresh
//	func handleRefresh(c *gin.Context) {
//	    oldToken := c.Request.Header.Get("Authorization")
//	    oldToken = strings.TrimPrefix(oldToken, "Bearer ")
//
//	    newToken, err := jwtManager.RefreshToken(oldToken)
//	    if err != nil {
//	        // Token expired, not in window, or invalid
//	        c.JSON(401, gin.H{"error": err.Error()})
//	        return
//	    }
//
//	    // Return new token to client
//	    c.JSON(200, gin.H{"token": newToken})
//	}
//
// PARAMETERS:
//   - tokenString: Current JWT token (must be valid and in refresh window)
//
// RETURNS:
//   - string: New token with extended expiration (new 24-hour lifetime)
//   - error: If token is invalid, expired, or not in refresh window
//
// COMMON ERRORS:
//   - "token has already expired": Token exp claim has passed (must re-authenticate)
//   - "token not eligible for refresh yet": Token has > 7 days remaining (too early)
//   - "failed to parse token": Token is invalid, tampered, or wrong algorithm
//
// REFRESH TIMING RECOMMENDATION:
//
// Client should refresh tokens proactively:
// - Check token expiration on app startup
// - If < 7 days remaining, call /api/v1/auth/refresh
// - If refresh fails, redirect to login page
// - Consider refreshing daily to maintain continuous access
func (m *JWTManager) RefreshToken(tokenString string) (string, error) {
	// STEP 1: Validate the current token
	// This ensures we only refresh valid, non-tampered tokens
	// Also extracts claims needed for the new token
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		// Token is invalid, expired, or tampered
		// User must re-authenticate to get a new token
		return "", err
	}

	// STEP 2: Calculate time remaining until expiration
	// This determines if token is in the 7-day refresh window
	timeRemaining := time.Until(claims.ExpiresAt.Time)

	// STEP 3: Check if token has expired
	// Expired tokens cannot be refreshed - must re-authenticate
	if timeRemaining < 0 {
		return "", errors.New("token has already expired")
	}

	// STEP 4: Check if token is too fresh to refresh
	// SECURITY: Prevents infinite token refresh
	//
	// If token has > 7 days remaining, reject refresh attempt
	// This forces periodic re-authentication (max ~24-30 days)
	//
	// Example scenarios:
	// - Token issued today, expires in 24 days: 24 days remaining -> reject
	// - Token issued 18 days ago, expires in 6 days: 6 days remaining -> allow
	// - Token issued 25 days ago, expired yesterday: -1 days remaining -> reject (handled above)
	if timeRemaining > 7*24*time.Hour {
		return "", errors.New("token not eligible for refresh yet (more than 7 days remaining)")
	}

	// STEP 5: Token is in valid refresh window - generate new token
	// New token has:
	// - Same claims (user_id, username, email, role, groups)
	// - Updated timestamps (iat, exp, nbf)
	// - New expiration: current_time + TokenDuration (default: 24 hours)
	//
	// User permissions/role are preserved from old token
	// Cannot escalate privileges by refreshing
	return m.GenerateToken(claims.UserID, claims.Username, claims.Email, claims.Role, claims.Groups)
}

// ExtractUserID extracts the user ID from a token without full validation
func (m *JWTManager) ExtractUserID(tokenString string) (string, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// GetTokenDuration returns the configured token duration
func (m *JWTManager) GetTokenDuration() time.Duration {
	return m.config.TokenDuration
}
