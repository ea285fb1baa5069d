// Package nephoscale is a client driver for the NephoScale cloud API.
// It authenticates with a user/key pair, lists provider resources
// (datacenters, images, service types, servers, credential keys) and
// issues server lifecycle commands.
//
// The API's create call is fire-and-forget: it acknowledges the request
// without returning an id or address. CreateNode therefore polls the
// listing endpoint for a server with the requested name, bounded by a
// fixed budget, and falls back to a placeholder result with an empty ID
// when the budget runs out.
package nephoscale
