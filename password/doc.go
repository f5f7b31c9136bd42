// Package password hashes account passwords with Argon2id and backup codes with
// bcrypt.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after a successful login. Backup codes use the standard
// bcrypt modular format.
//
// # What this package must NOT do
//
//   - Enforce password policy (length, confirmation); the Engine does that.
//   - Import any other goGuard package.
//   - Log plaintext secrets.
package password
