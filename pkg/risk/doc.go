/*
Package risk is the Runtime Risk Monitor: check_before_order, on_fill,
on_edge_update, cancel_all_if_frozen. It enforces a per-symbol max
inventory and a total notional cap pre-trade, and arms a freeze when a
symbol's edge degrades below threshold — after which every pre-trade
check blocks until an explicit Unfreeze.

Inventory is read live from pkg/position's Tracker rather than duplicated
here, matching the "avoid back-references from Order to Position" note:
the Monitor queries, it never mutates.
*/
package risk
