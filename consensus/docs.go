package consensus

//
//                 +------------------------------------------+
//                 v                                          |
//          +-------------+   payload / error txs      +------+------+
//  ------> |   Collect   +--------------------------->|   Resolve   |
//          +------+------+                            +------+------+
//                 |  timeout tx (first one ordered wins)     |
//                 +----------------------------------------->|
//                                                            v
//          +-------------------------------------------------------+
//          |  Commit                                               |
//          |                                                       |
//          |  * write collection/selection keys on DONE;           |
//          |  * Advance(kind, event) through the transition table; |
//          |  * final round halts, missing transition is fatal;    |
//          +-------------------------------------------------------+

// RoundSequence - per agent replica of the round state machine, fed by the ordered log
//	- App - validated transition table, round declarations, timeouts
//	- Round - collection of one round instance, resolves at most once
//	- SynchronizedData - state shared by all agents, only written on commit
//	- Resolutions - history of every (round, event, next) the replica went through
