/*
Package events provides the two broadcast streams that cross subsystem
boundaries without a direct caller/callee coupling: fills and order book
snapshots. Both brokers fan a single upstream producer (the connector) out
to any number of subscribers with a non-blocking publish — a slow or
inactive subscriber drops events rather than stalling the producer.

Subscribing is always safe to do more than once and at any point during a
run: each Subscribe call returns an independent channel seeded with
nothing but future events, so a late subscriber (e.g. a PositionTracker
created partway through startup) never misses events published before it
existed only insofar as it didn't exist yet to receive them.
*/
package events
