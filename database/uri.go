package database

import "fmt"

const uriScheme = "mongodb+srv"

// BuildURI assembles the Atlas connection string. Values are interpolated as
// given; empty parts produce empty segments and fail at connect time.
func BuildURI(user, password, path string) string {
	return fmt.Sprintf("%s://%s:%s@%s/?retryWrites=true&w=majority", uriScheme, user, password, path)
}
