// package services implements the HTTP clients the CLI talks to: the
// identity provider issuing tokens ([IdentityService]) and the media server
// serving track metadata and audio bytes ([MediaService]).
//
// All calls are single-shot. Transport failures and authentication
// rejections are reported as distinct errors and never retried here.
package services
