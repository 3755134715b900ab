package httpapi

// Client-facing messages. Internal failures never carry detail.
const (
	msgRegistered        = "Account registered. Check your email to verify it."
	msgEmailTaken        = "Email is already registered"
	msgUsernameTaken     = "Username is already taken"
	msgRegisterFailed    = "Could not register account"
	msgInvalidRequest    = "Invalid request"
	msgVerified          = "Account verified"
	msgInvalidToken      = "Invalid or expired token"
	msgVerifyFailed      = "Could not verify account"
	msgLoggedIn          = "Login successful"
	msgInvalidCreds      = "Invalid credentials"
	msgLoginFailed       = "Login failed"
	msgTooManyRequests   = "Too many requests, try again later"
	msgRateLimiterFailed = "Rate limiter unavailable"
)
