package docstore

import "context"

// ReadAs reads a document into a fresh T. The zero T is returned when the document is absent.
func ReadAs[T any](ctx context.Context, c *Client, entityType, entityID string) (value T, token uint64, found bool, err error) {
	token, found, err = c.Read(ctx, entityType, entityID, &value)
	if err != nil || !found {
		var zero T
		return zero, 0, false, err
	}
	return value, token, true, nil
}
