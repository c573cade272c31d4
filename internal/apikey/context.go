package apikey

import "github.com/labstack/echo/v4"

const contextKey = "api_key"

func SetContext(c echo.Context, key *APIKey) {
	c.Set(contextKey, key)
}

func FromContext(c echo.Context) *APIKey {
	if key, ok := c.Get(contextKey).(*APIKey); ok {
		return key
	}
	return nil
}
