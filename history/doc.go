// Package history пишет журнал выполнений task в PostgreSQL.
//
// Журнал заполняется через шину событий (пакет events): Listener
// подписывается на события выполнения и складывает записи в таблицу
// task_executions. Сервер хранит свою историю сам; локальный журнал
// нужен для аудита и отладки на стороне worker-процесса и целиком
// опционален.
package history
