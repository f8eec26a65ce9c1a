// Package client реализует HTTP-клиент оркестрационного сервера.
//
// # Обзор
//
// Client покрывает три вызова, нужные worker runtime:
//
//   - PollTasks — batch-poll task'ов одного типа (пустой ответ — норма)
//   - UpdateTask / UpdateTaskSync — отправка TaskResult
//   - RegisterTaskDef — регистрация определения task на сервере
//
// # Auth-resilience
//
// Сервер отвечает 401, когда access token протух. Такие ответы на
// auth-зависимых путях перехватывает AuthRetryPolicy: клиент
// принудительно обновляет token и повторяет запрос с exponential
// backoff. После MaxAttempts подряд неудач политика переходит в
// STOPPED и клиент возвращает ErrAuthRetriesExhausted — runtime
// обязан завершиться, а не повторять бесконечно.
//
// 401 на самом token-эндпоинте, а также 403/4xx/5xx политикой не
// перехватываются и возвращаются вызывающему сразу.
package client
