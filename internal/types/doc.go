/*
Package types defines the data structures shared by the load generator,
the HTTP client and the review service stub.

# Overview

The types package provides:
  - Wire payloads of the review-assignment service (teams, pull requests,
    merge and reassign requests, error envelopes)
  - RequestResult, the outcome of one HTTP call
  - TLSConfig for the load generator's HTTP transport

# Wire Payloads

Field names follow the service's JSON contract (snake_case). Response
types keep optional fields as pointers or omitempty so that the decoder in
the load generator can tell an absent reviewer list from an empty one.

# Design Principles

  - No behavior beyond small helpers; packages own their logic
  - JSON tags are the contract; Go names are free to be idiomatic
*/
package types
