/*
Package model defines the payloads handed to a Reporter.

# Overview

Payloads are plain structs with json tags in the intake wire shape:
timestamps are microseconds since the Unix epoch and durations are
milliseconds. Building a payload is the "encode" half of the pipeline's
encode+send step; Validate rejects payloads that cannot be sent.
*/
package model
