package errors

import "fmt"

// Wrap adds context to an error at a package boundary. A nil err passes
// through as nil, so it is safe inline:
//
//	return errors.Wrap(q.Drain(ctx), "upload queue drain failed")
//
// The original chain is preserved; errors.Is against the package's
// sentinels keeps working on the wrapped error.
//
// IMPORTANT: Only wrap at package boundaries to avoid overly nested
// error messages.
func Wrap(err error, msg string) error {
	return Wrapf(err, "%s", msg)
}

// Wrapf is Wrap with a formatted context message:
//
//	return errors.Wrapf(err, "failed to update record %s", recordID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
