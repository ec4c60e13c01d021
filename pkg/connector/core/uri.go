package core

import (
	"net/url"
	"strings"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// EncodeURI builds the URI a record is addressed by. Each "/" separated
// segment of id is path-escaped, so "/a b/c" becomes "scheme:///a%20b/c".
func EncodeURI(scheme, id string) string {
	segments := strings.Split(id, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return scheme + "://" + strings.Join(segments, "/")
}

// DecodeURI returns the id EncodeURI encoded into uri.
func DecodeURI(scheme, uri string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return "", errors.Newf(errors.ErrorTypeValidation, "uri %q does not use scheme %s", uri, scheme).
			WithDetail("uri", uri)
	}
	id, err := url.PathUnescape(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "malformed uri").
			WithDetail("uri", uri)
	}
	return id, nil
}
